// Package httpx はAPIエラーの型とレスポンス描画を提供します。
package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error はクライアントへ返す型付きエラーです。
// Message はそのまま利用者へ表示されるため、内部のエラー文を入れてはいけません。
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// 既定の安全なメッセージ。元実装のエラーハンドラーと同じ文言を使います。
const (
	genericMessage  = "問題が起きました"
	notFoundMessage = "ページが見つかりませんでした"
)

// Abort は err を適切なステータスとJSONで描画し、処理を打ち切ります。
// 型付きエラー以外はすべて 500 + 既定メッセージに落とします。
func Abort(c *gin.Context, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = genericMessage
		}
		c.AbortWithStatusJSON(apiErr.Status, gin.H{
			"code":    apiErr.Code,
			"message": message,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": genericMessage,
	})
}

// NotFound は未定義ルート用の404ハンドラーです。
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":    "NOT_FOUND",
		"message": notFoundMessage,
	})
}
