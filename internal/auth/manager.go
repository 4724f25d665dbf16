// Package auth は認証まわりのHTTPハンドラーとミドルウェアを提供します。
package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/camp-trail/internal/account"
	"github.com/yourusername/camp-trail/internal/httpx"
	"github.com/yourusername/camp-trail/internal/session"
	"github.com/yourusername/camp-trail/internal/webctx"
)

// Manager は資格情報ストアとセッション管理をまとめた構造体です。
type Manager struct {
	accounts *account.Store
	sessions *session.Manager
	logger   *log.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(accounts *account.Store, sessions *session.Manager, logger *log.Logger) *Manager {
	return &Manager{
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Register は POST /api/auth/register のハンドラーです。
// 登録に成功した場合はそのままログイン状態にします。
func (m *Manager) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	identity, err := m.accounts.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		m.fail(c, err)
		return
	}

	if err := m.openSession(c, identity.ID, identity.Email); err != nil {
		m.fail(c, err)
		return
	}

	wc := webctx.Get(c)
	wc.Flash(webctx.FlashSuccess, "ようこそ、Camp Trailへ！")
	c.JSON(http.StatusCreated, gin.H{
		"identity": gin.H{"id": identity.ID, "email": identity.Email},
		"flash":    wc.Consume(webctx.FlashSuccess),
	})
}

// Login は POST /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	identity, err := m.accounts.Verify(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		m.fail(c, err)
		return
	}

	if err := m.openSession(c, identity.ID, identity.Email); err != nil {
		m.fail(c, err)
		return
	}

	wc := webctx.Get(c)
	wc.Flash(webctx.FlashSuccess, "おかえりなさい！")
	c.JSON(http.StatusOK, gin.H{
		"identity": gin.H{"id": identity.ID, "email": identity.Email},
		"flash":    wc.Consume(webctx.FlashSuccess),
	})
}

// Logout は POST /api/auth/logout のハンドラーです。何度呼んでも成功します。
func (m *Manager) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if cookie := m.sessions.ReadCookie(c); cookie != "" {
		record, err := m.sessions.Resolve(ctx, cookie)
		if err != nil {
			m.fail(c, err)
			return
		}
		if record != nil {
			if err := m.sessions.Destroy(ctx, record.Token); err != nil {
				m.fail(c, err)
				return
			}
		}
	}
	m.sessions.ClearCookie(c)
	c.Status(http.StatusNoContent)
}

// ChangePassword は POST /api/auth/password のハンドラーです。
// 資格情報を置き換えるだけで、他のブラウザのセッションは維持されます。
func (m *Manager) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "password を JSON で送ってください",
		})
		return
	}

	wc := webctx.Get(c)
	if err := m.accounts.ChangePassword(c.Request.Context(), wc.Identity.ID, req.Password); err != nil {
		m.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me は GET /api/auth/me のハンドラーです。
func (m *Manager) Me(c *gin.Context) {
	wc := webctx.Get(c)
	c.JSON(http.StatusOK, gin.H{"identity": wc.Identity})
}

// openSession は既存トークンを破棄してから新しいセッションを開始します。
// ログイン前後でトークンを引き継がないのは固定化攻撃への対策です。
func (m *Manager) openSession(c *gin.Context, identityID, email string) error {
	ctx := c.Request.Context()
	if prior := m.sessions.ReadCookie(c); prior != "" {
		record, err := m.sessions.Resolve(ctx, prior)
		if err == nil && record != nil {
			_ = m.sessions.Destroy(ctx, record.Token)
		}
	}

	token, err := m.sessions.Start(ctx, identityID, email)
	if err != nil {
		return err
	}
	return m.sessions.IssueCookie(c, token)
}

// fail は認証系エラーを描画します。詳細はサーバー側ログにだけ残します。
func (m *Manager) fail(c *gin.Context, err error) {
	if errors.Is(err, account.ErrLockedTemporarily) || errors.Is(err, account.ErrTooManyAttempts) {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		lock := m.accounts.Policy().LockDuration
		c.Header("Retry-After", strconv.FormatInt(int64(lock.Seconds()), 10))
	}
	if m.logger != nil {
		m.logger.Printf("auth failure: %v", err)
	}
	httpx.Abort(c, err)
}
