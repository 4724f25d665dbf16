package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/camp-trail/internal/httpx"
	"github.com/yourusername/camp-trail/internal/webctx"
)

// CurrentIdentity はCookieからセッションを解決し、現在のユーザーを
// webctx へ載せるミドルウェアを返します。Cookieの欠落・改ざん・期限
// 切れは匿名として処理を続けます。ストア障害だけは5xxで打ち切ります。
func (m *Manager) CurrentIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		wc := webctx.Get(c)

		cookie := m.sessions.ReadCookie(c)
		if cookie == "" {
			c.Next()
			return
		}

		record, err := m.sessions.Resolve(c.Request.Context(), cookie)
		if err != nil {
			if m.logger != nil {
				m.logger.Printf("session resolve failed: %v", err)
			}
			httpx.Abort(c, err)
			return
		}
		if record.Anonymous() {
			c.Next()
			return
		}

		wc.Identity = &webctx.Identity{ID: record.IdentityID, Email: record.Email}

		// 書き込み回数を抑えるため、Touch は間隔を空けてしか保存しない
		if err := m.sessions.Touch(c.Request.Context(), record); err != nil && m.logger != nil {
			m.logger.Printf("session touch failed: %v", err)
		}
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストを拒否するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !webctx.Get(c).LoggedIn() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}
		c.Next()
	}
}
