// Package session はブラウザ単位のセッション発行・解決・破棄を提供します。
//
// セッションは不透明トークンをキーに Redis へ保存します。保存する
// ペイロードは専用鍵で暗号化・署名するため、ストアの行が漏れても
// それ単体ではセッションを偽造できません。ブラウザへ渡すCookie値は
// 別の鍵で封印したトークンです。
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/camp-trail/internal/httpx"
)

const (
	recordKeyPrefix = "session:"
	indexKeyPrefix  = "session_idx:"
	payloadName     = "session_record"
)

// ErrStoreUnavailable はセッションストアへの到達失敗を表します。
// 「セッションが存在しない」とは区別されます。
var ErrStoreUnavailable = &httpx.Error{
	Status:  http.StatusInternalServerError,
	Code:    "SESSION_STORE_UNAVAILABLE",
	Message: "問題が起きました",
}

// Record は永続化されるセッション状態です。
type Record struct {
	Token      string    `json:"token"`
	IdentityID string    `json:"identityId,omitempty"` // 空なら匿名
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	TouchedAt  time.Time `json:"touchedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Anonymous は匿名扱いのレコードかどうかを返します。
func (r *Record) Anonymous() bool {
	return r == nil || r.IdentityID == ""
}

// Options はセッションとCookieの動作設定です。
type Options struct {
	CookieName   string        // Cookie名。実装技術を推測されない名前にする
	MaxAge       time.Duration // セッションの有効期間
	TouchAfter   time.Duration // 最終アクセス時刻を書き直す最短間隔
	Secure       bool          // Secure属性（本番のみ）
	StoreTimeout time.Duration // Redis呼び出しのタイムアウト
}

// Manager はセッションの発行と検証をまとめます。
type Manager struct {
	rdb    *redis.Client
	cookie *securecookie.SecureCookie // Cookie値（トークン）の封印
	sealer *securecookie.SecureCookie // ストア上のペイロード暗号化（別鍵）
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

// NewManager は Manager を作成します。
// secret はCookie封印用、cryptoKey はストア暗号化用で、別の値を渡します。
func NewManager(rdb *redis.Client, secret, cryptoKey string, opts Options, logger *log.Logger) (*Manager, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if cryptoKey == "" {
		return nil, errors.New("session crypto key is empty")
	}
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.TouchAfter <= 0 {
		opts.TouchAfter = 24 * time.Hour
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}

	cookie := codecFromSecret(secret, "cookie")
	cookie.MaxAge(int(opts.MaxAge.Seconds()))
	sealer := codecFromSecret(cryptoKey, "record")
	sealer.MaxAge(int(opts.MaxAge.Seconds()))

	return &Manager{
		rdb:    rdb,
		cookie: cookie,
		sealer: sealer,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}, nil
}

// codecFromSecret は任意長の秘密鍵からHMAC鍵とAES鍵を導出します。
func codecFromSecret(secret, scope string) *securecookie.SecureCookie {
	hashKey := sha256.Sum256([]byte(secret + "/hmac/" + scope))
	blockKey := sha256.Sum256([]byte(secret + "/aes/" + scope))
	sc := securecookie.New(hashKey[:], blockKey[:])
	sc.SetSerializer(securecookie.JSONEncoder{})
	return sc
}

// Start は identity 用の新しいセッションを開始し、トークンを返します。
// ログイン時の固定化対策（旧トークンの破棄）は呼び出し側が行います。
func (m *Manager) Start(ctx context.Context, identityID, email string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", m.storeErr("generate token", err)
	}

	now := m.now()
	record := &Record{
		Token:      token,
		IdentityID: identityID,
		Email:      email,
		CreatedAt:  now,
		TouchedAt:  now,
		ExpiresAt:  now.Add(m.opts.MaxAge),
	}
	if err := m.save(ctx, record); err != nil {
		return "", err
	}

	if identityID != "" {
		octx, cancel := m.opCtx(ctx)
		defer cancel()
		if err := m.rdb.SAdd(octx, indexKey(identityID), token).Err(); err != nil {
			return "", m.storeErr("index token", err)
		}
		_ = m.rdb.Expire(octx, indexKey(identityID), m.opts.MaxAge).Err()
	}
	return token, nil
}

// Resolve はCookie値からセッションを解決します。
// 欠落・改ざん・期限切れはエラーではなく匿名 (nil, nil) として扱います。
func (m *Manager) Resolve(ctx context.Context, cookieValue string) (*Record, error) {
	if cookieValue == "" {
		return nil, nil
	}
	var token string
	if err := m.cookie.Decode(m.opts.CookieName, cookieValue, &token); err != nil {
		return nil, nil
	}
	return m.resolveToken(ctx, token)
}

func (m *Manager) resolveToken(ctx context.Context, token string) (*Record, error) {
	octx, cancel := m.opCtx(ctx)
	defer cancel()

	sealed, err := m.rdb.Get(octx, recordKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, m.storeErr("load record", err)
	}

	var record Record
	if err := m.sealer.Decode(payloadName, sealed, &record); err != nil {
		// 復号できないレコードは捨てて匿名扱いにする
		_ = m.Destroy(ctx, token)
		return nil, nil
	}
	if !m.now().Before(record.ExpiresAt) {
		// 物理的に残っていても期限切れは不在として扱う
		_ = m.Destroy(ctx, token)
		return nil, nil
	}
	return &record, nil
}

// Touch は最終アクセス時刻と有効期限を更新します。
// 前回の更新から TouchAfter が経過するまでは書き込みを行いません。
func (m *Manager) Touch(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	now := m.now()
	if now.Sub(record.TouchedAt) < m.opts.TouchAfter {
		return nil
	}
	record.TouchedAt = now
	record.ExpiresAt = now.Add(m.opts.MaxAge)
	return m.save(ctx, record)
}

// Destroy はセッションを削除します。存在しなくても成功します。
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	octx, cancel := m.opCtx(ctx)
	defer cancel()
	if err := m.rdb.Del(octx, recordKey(token)).Err(); err != nil {
		return m.storeErr("delete record", err)
	}
	return nil
}

// PruneIndexes は Identity 別トークン索引から実体の消えたトークンを
// 取り除き、削除した件数を返します。定期掃除から呼ばれます。
func (m *Manager) PruneIndexes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var pruned int64
	var cursor uint64
	for {
		keys, next, err := m.rdb.Scan(ctx, cursor, indexKeyPrefix+"*", 100).Result()
		if err != nil {
			return pruned, m.storeErr("scan indexes", err)
		}
		for _, key := range keys {
			tokens, err := m.rdb.SMembers(ctx, key).Result()
			if err != nil {
				return pruned, m.storeErr("list index", err)
			}
			for _, token := range tokens {
				n, err := m.rdb.Exists(ctx, recordKey(token)).Result()
				if err != nil {
					return pruned, m.storeErr("check record", err)
				}
				if n == 0 {
					if err := m.rdb.SRem(ctx, key, token).Err(); err != nil {
						return pruned, m.storeErr("prune index", err)
					}
					pruned++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return pruned, nil
}

// IssueCookie は封印したトークンをセッションCookieとして発行します。
func (m *Manager) IssueCookie(c *gin.Context, token string) error {
	value, err := m.cookie.Encode(m.opts.CookieName, token)
	if err != nil {
		return m.storeErr("encode cookie", err)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie はセッションCookieを無効化します。
func (m *Manager) ClearCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadCookie はリクエストからセッションCookie値を取り出します。
func (m *Manager) ReadCookie(c *gin.Context) string {
	value, err := c.Cookie(m.opts.CookieName)
	if err != nil {
		return ""
	}
	return value
}

func (m *Manager) save(ctx context.Context, record *Record) error {
	sealed, err := m.sealer.Encode(payloadName, record)
	if err != nil {
		return m.storeErr("seal record", err)
	}

	ttl := record.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return errors.New("record already expired")
	}

	octx, cancel := m.opCtx(ctx)
	defer cancel()
	if err := m.rdb.Set(octx, recordKey(record.Token), sealed, ttl).Err(); err != nil {
		return m.storeErr("save record", err)
	}
	return nil
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opts.StoreTimeout)
}

func (m *Manager) storeErr(op string, err error) error {
	if m.logger != nil {
		m.logger.Printf("session store error (%s): %v", op, err)
	}
	return ErrStoreUnavailable
}

// newToken は推測不能なセッショントークンを生成します。
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func recordKey(token string) string {
	return recordKeyPrefix + token
}

func indexKey(identityID string) string {
	return indexKeyPrefix + identityID
}
