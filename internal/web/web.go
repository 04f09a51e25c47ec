// Package web は HTML テンプレートと描画ヘルパーを提供します。
package web

import (
	"embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/flaskr/internal/requestctx"
)

//go:embed templates
var templateFS embed.FS

// Templates は埋め込みテンプレートをすべて読み込みます。
// gin.Engine.SetHTMLTemplate に渡して使用します。
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS,
		"templates/*.html",
		"templates/auth/*.html",
		"templates/blog/*.html",
	))
}

// Render はフラッシュメッセージとログインユーザーを data に加えてテンプレートを描画します。
// 取り出したフラッシュはセッションから削除されます。
func Render(c *gin.Context, code int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}

	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			_ = c.Error(err)
		}
	}

	data["Flashes"] = flashes
	data["User"] = requestctx.User(c)
	c.HTML(code, name, data)
}

// Flash はフラッシュメッセージを追加します。保存は Render が行います。
func Flash(c *gin.Context, message string) {
	sessions.Default(c).AddFlash(message)
}

// ErrorPage はエラーページを描画してハンドラーチェーンを中断します。
func ErrorPage(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{
		"Title":   http.StatusText(code),
		"Message": message,
	})
	c.Abort()
}

// ServerError はエラーをリクエストIDと共にログに記録し、500 を返します。
func ServerError(c *gin.Context, logger *log.Logger, op string, err error) {
	logger.Printf("%s failed request_id=%s path=%s: %v",
		op, requestctx.RequestIDFrom(c), c.Request.URL.Path, err)
	_ = c.Error(err)
	c.AbortWithStatus(http.StatusInternalServerError)
}
