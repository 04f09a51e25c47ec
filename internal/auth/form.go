package auth

import "github.com/gin-gonic/gin"

const (
	msgUsernameRequired  = "Username is required."
	msgPasswordRequired  = "Password is required."
	msgPasswordTooLong   = "Password is too long."
	msgIncorrectUsername = "Incorrect username."
	msgIncorrectPassword = "Incorrect password."
	msgTooManyAttempts   = "Too many failed login attempts. Try again later."
)

// maxPasswordBytes は bcrypt が扱えるパスワードの最大バイト数です。
const maxPasswordBytes = 72

// credentialsForm は登録・ログインフォームの入力です。
type credentialsForm struct {
	Username string
	Password string
}

func bindCredentials(c *gin.Context) credentialsForm {
	return credentialsForm{
		Username: c.PostForm("username"),
		Password: c.PostForm("password"),
	}
}

// validate は最初に失敗した必須チェックのメッセージを返します。問題がなければ空文字です。
func (f credentialsForm) validate() string {
	switch {
	case f.Username == "":
		return msgUsernameRequired
	case f.Password == "":
		return msgPasswordRequired
	}
	return ""
}

func (f credentialsForm) passwordTooLong() bool {
	return len(f.Password) > maxPasswordBytes
}
