// Package account は識別子とパスワードによる登録・照合を提供します。
// 平文パスワードはハッシュ化の直後に破棄され、ハッシュの読み出しは
// このパッケージの外へ公開しません。
package account

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Policy はロックアウトの閾値と期間、ストア呼び出しの上限時間を定めます。
type Policy struct {
	MaxAttempts  int           // ロックまでの連続失敗回数
	LockDuration time.Duration // ロック継続時間
	StoreTimeout time.Duration // DB呼び出しのタイムアウト
}

var defaultPolicy = Policy{
	MaxAttempts:  5,
	LockDuration: 10 * time.Minute,
	StoreTimeout: 3 * time.Second,
}

// Store は Identity の永続化と認証判定を担います。
type Store struct {
	db     *gorm.DB
	policy Policy
	logger *log.Logger
	now    func() time.Time
}

// NewStore は Store を作成し、スキーマをマイグレーションします。
func NewStore(db *gorm.DB, policy Policy, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultPolicy.MaxAttempts
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = defaultPolicy.LockDuration
	}
	if policy.StoreTimeout <= 0 {
		policy.StoreTimeout = defaultPolicy.StoreTimeout
	}

	if err := db.AutoMigrate(&Identity{}); err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Policy は適用中のロックアウト設定を返します。
func (s *Store) Policy() Policy {
	return s.policy
}

// Register は新しい Identity を作成します。
// 識別子は小文字へ正規化し、パスワードは bcrypt でハッシュ化して保存します。
func (s *Store) Register(ctx context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingIdentifier
	}
	if password == "" {
		return nil, ErrMissingPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, s.storeErr("hash password", err)
	}

	identity := &Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(identity).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrIdentityExists
		}
		return nil, s.storeErr("create identity", err)
	}
	return identity, nil
}

// Verify は識別子とパスワードを照合します。
// 未登録の識別子と誤ったパスワードは同じ失敗として扱います。
func (s *Store) Verify(ctx context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingIdentifier
	}
	if password == "" {
		return nil, ErrIncorrectCredential
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var identity Identity
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&identity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 識別子の有無を応答から区別させない
			if s.logger != nil {
				s.logger.Printf("verify: unknown identifier email=%s", email)
			}
			return nil, ErrIncorrectCredential
		}
		return nil, s.storeErr("load identity", err)
	}

	now := s.now()
	if identity.Locked(now) {
		return nil, ErrLockedTemporarily
	}
	if identity.PasswordHash == "" {
		return nil, ErrNoCredentialStored
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, s.recordFailure(ctx, identity.ID, now)
	}

	// 成功したら失敗回数とロックを巻き戻す
	if identity.FailedCount > 0 || identity.LockedUntil != nil {
		if err := s.db.WithContext(ctx).Model(&Identity{}).
			Where("id = ?", identity.ID).
			Updates(map[string]any{"failed_count": 0, "locked_until": nil}).Error; err != nil {
			return nil, s.storeErr("reset attempts", err)
		}
		identity.FailedCount = 0
		identity.LockedUntil = nil
	}
	return &identity, nil
}

// ChangePassword は資格情報を置き換えます。
// 既存セッションの無効化は行いません。
func (s *Store) ChangePassword(ctx context.Context, identityID, newPassword string) error {
	if newPassword == "" {
		return ErrMissingPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return s.storeErr("hash password", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&Identity{}).
		Where("id = ?", identityID).
		UpdateColumn("password_hash", string(hash))
	if res.Error != nil {
		return s.storeErr("update password", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// SweepLockouts は期限の切れたロックを解除し、失敗回数を0へ戻します。
// 解除した件数を返します。
func (s *Store) SweepLockouts(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&Identity{}).
		Where("locked_until IS NOT NULL AND locked_until < ?", s.now()).
		Updates(map[string]any{"failed_count": 0, "locked_until": nil})
	if res.Error != nil {
		return 0, s.storeErr("sweep lockouts", res.Error)
	}
	return res.RowsAffected, nil
}

// recordFailure は失敗回数を加算し、閾値に達した場合はロックします。
// 同一 Identity への並行失敗で閾値をすり抜けないよう、加算はSQL側の
// 単一UPDATEで行い、ロック設定も回数条件付きのUPDATEにしています。
func (s *Store) recordFailure(ctx context.Context, identityID string, now time.Time) error {
	if err := s.db.WithContext(ctx).Model(&Identity{}).
		Where("id = ?", identityID).
		UpdateColumn("failed_count", gorm.Expr("failed_count + 1")).Error; err != nil {
		return s.storeErr("record failure", err)
	}

	res := s.db.WithContext(ctx).Model(&Identity{}).
		Where("id = ? AND failed_count >= ? AND (locked_until IS NULL OR locked_until < ?)",
			identityID, s.policy.MaxAttempts, now).
		UpdateColumn("locked_until", now.Add(s.policy.LockDuration))
	if res.Error != nil {
		return s.storeErr("set lockout", res.Error)
	}
	if res.RowsAffected > 0 {
		return ErrTooManyAttempts
	}
	return ErrIncorrectCredential
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.policy.StoreTimeout)
}

// storeErr はDB障害を記録し、利用者向けには安全な汎用エラーへ変換します。
func (s *Store) storeErr(op string, err error) error {
	if s.logger != nil {
		s.logger.Printf("account store error (%s): %v", op, err)
	}
	return ErrStoreUnavailable
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// TranslateError を使わない接続向けのフォールバック
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
