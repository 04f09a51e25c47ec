package blog

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/flaskr/internal/requestctx"
	"github.com/yourusername/flaskr/internal/storage"
	"github.com/yourusername/flaskr/internal/web"
)

const (
	msgTitleRequired = "Title is required."

	indexTemplate  = "blog/index.html"
	createTemplate = "blog/create.html"
	updateTemplate = "blog/update.html"
)

// postForm は投稿フォームの入力です。
type postForm struct {
	Title string
	Body  string
}

func bindPost(c *gin.Context) postForm {
	return postForm{
		Title: c.PostForm("title"),
		Body:  c.PostForm("body"),
	}
}

// Handler は投稿関連の HTTP ハンドラーです。
type Handler struct {
	logger *log.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{logger: logger}
}

// RegisterRoutes は投稿のルートを登録します。作成・更新・削除には requireLogin を適用します。
func (h *Handler) RegisterRoutes(r gin.IRouter, requireLogin gin.HandlerFunc) {
	r.GET("/", h.Index)

	protected := r.Group("", requireLogin)
	{
		protected.GET("/create", h.Create)
		protected.POST("/create", h.Create)
		protected.GET("/:id/update", h.Update)
		protected.POST("/:id/update", h.Update)
		protected.POST("/:id/delete", h.Delete)
	}
}

// Index は GET / のハンドラーです。
func (h *Handler) Index(c *gin.Context) {
	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, h.logger, "list posts", err)
		return
	}
	posts, err := ListPosts(c.Request.Context(), conn)
	if err != nil {
		web.ServerError(c, h.logger, "list posts", err)
		return
	}
	web.Render(c, http.StatusOK, indexTemplate, gin.H{
		"Title": "Posts",
		"Posts": posts,
	})
}

// Create は /create のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		web.Render(c, http.StatusOK, createTemplate, gin.H{"Title": "New Post", "Form": postForm{}})
		return
	}

	form := bindPost(c)
	if form.Title == "" {
		web.Flash(c, msgTitleRequired)
		web.Render(c, http.StatusOK, createTemplate, gin.H{"Title": "New Post", "Form": form})
		return
	}

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, h.logger, "create post", err)
		return
	}
	user := requestctx.User(c)
	if _, err := CreatePost(c.Request.Context(), conn, user.ID, form.Title, form.Body); err != nil {
		web.ServerError(c, h.logger, "create post", err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Update は /:id/update のハンドラーです。
func (h *Handler) Update(c *gin.Context) {
	post, ok := h.loadOwnPost(c)
	if !ok {
		return
	}

	if c.Request.Method != http.MethodPost {
		web.Render(c, http.StatusOK, updateTemplate, gin.H{
			"Title": fmt.Sprintf("Edit %q", post.Title),
			"Post":  post,
			"Form":  postForm{Title: post.Title, Body: post.Body},
		})
		return
	}

	form := bindPost(c)
	if form.Title == "" {
		web.Flash(c, msgTitleRequired)
		web.Render(c, http.StatusOK, updateTemplate, gin.H{
			"Title": fmt.Sprintf("Edit %q", post.Title),
			"Post":  post,
			"Form":  form,
		})
		return
	}

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, h.logger, "update post", err)
		return
	}
	if err := UpdatePost(c.Request.Context(), conn, post.ID, form.Title, form.Body); err != nil {
		web.ServerError(c, h.logger, "update post", err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Delete は POST /:id/delete のハンドラーです。
func (h *Handler) Delete(c *gin.Context) {
	post, ok := h.loadOwnPost(c)
	if !ok {
		return
	}

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, h.logger, "delete post", err)
		return
	}
	if err := DeletePost(c.Request.Context(), conn, post.ID); err != nil {
		web.ServerError(c, h.logger, "delete post", err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// loadOwnPost はパスの id の投稿を読み込み、ログインユーザーが投稿者であることを確認します。
// 失敗時はレスポンスを書き込み false を返します。
func (h *Handler) loadOwnPost(c *gin.Context) (*Post, bool) {
	idParam := c.Param("id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		web.ErrorPage(c, http.StatusNotFound, fmt.Sprintf("Post id %s doesn't exist.", idParam))
		return nil, false
	}

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, h.logger, "get post", err)
		return nil, false
	}

	post, err := GetPost(c.Request.Context(), conn, id)
	if errors.Is(err, ErrPostNotFound) {
		web.ErrorPage(c, http.StatusNotFound, fmt.Sprintf("Post id %d doesn't exist.", id))
		return nil, false
	}
	if err != nil {
		web.ServerError(c, h.logger, "get post", err)
		return nil, false
	}

	user := requestctx.User(c)
	if user == nil || post.AuthorID != user.ID {
		web.ErrorPage(c, http.StatusForbidden, "You are not the author of this post.")
		return nil, false
	}
	return post, true
}
