// Package security はレスポンス毎のセキュリティヘッダーを付与します。
package security

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/camp-trail/internal/webctx"
)

// Policy は Content-Security-Policy の許可オリジン一覧です。
// 'self' は常に含まれるため、ここには外部オリジンのみを並べます。
type Policy struct {
	ScriptOrigins  []string
	StyleOrigins   []string
	ImgOrigins     []string
	ConnectOrigins []string
}

// Headers はCSPと基本的な防御ヘッダーを設定するミドルウェアを返します。
// ノンスはレスポンス毎に生成し、ヘッダーと webctx の両方へ渡します。
// インラインスクリプトを許可するのはこのノンス付きのものだけです。
func Headers(policy Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := newNonce()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "NONCE_GENERATION_FAILED",
				"message": "問題が起きました",
			})
			return
		}
		webctx.Get(c).Nonce = nonce

		c.Header("Content-Security-Policy", policy.header(nonce))
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

func (p Policy) header(nonce string) string {
	var b strings.Builder
	b.WriteString("default-src 'self'")
	b.WriteString("; script-src 'self' 'nonce-" + nonce + "'")
	writeOrigins(&b, p.ScriptOrigins)
	b.WriteString("; style-src 'self'")
	writeOrigins(&b, p.StyleOrigins)
	b.WriteString("; img-src 'self' data:")
	writeOrigins(&b, p.ImgOrigins)
	b.WriteString("; connect-src 'self'")
	writeOrigins(&b, p.ConnectOrigins)
	b.WriteString("; worker-src 'self' blob:")
	return b.String()
}

func writeOrigins(b *strings.Builder, origins []string) {
	for _, origin := range origins {
		b.WriteString(" ")
		b.WriteString(origin)
	}
}

// newNonce はレスポンス毎に使い捨てるランダム値を生成します。
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
