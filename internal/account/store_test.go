package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, policy Policy) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "account.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := NewStore(db, policy, nil)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	return store
}

func reload(t *testing.T, store *Store, id string) *Identity {
	t.Helper()
	var identity Identity
	if err := store.db.Where("id = ?", id).First(&identity).Error; err != nil {
		t.Fatalf("failed to reload identity: %v", err)
	}
	return &identity
}

func TestRegisterAndVerify(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	identity, err := store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if identity.ID == "" {
		t.Fatal("expected identity ID to be set")
	}
	if identity.PasswordHash == "secret1" {
		t.Fatal("plaintext password must not be stored")
	}

	got, err := store.Verify(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.ID != identity.ID {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	identity, err := store.Register(ctx, "  Camper@Example.COM ", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if identity.Email != "camper@example.com" {
		t.Fatalf("unexpected email: %s", identity.Email)
	}

	if _, err := store.Verify(ctx, "CAMPER@example.com", "secret1"); err != nil {
		t.Fatalf("Verify with different casing failed: %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	if _, err := store.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := store.Register(ctx, "A@X.com", "other"); !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	if _, err := store.Register(ctx, "", "secret1"); !errors.Is(err, ErrMissingIdentifier) {
		t.Fatalf("expected ErrMissingIdentifier, got %v", err)
	}
	if _, err := store.Register(ctx, "a@x.com", ""); !errors.Is(err, ErrMissingPassword) {
		t.Fatalf("expected ErrMissingPassword, got %v", err)
	}
}

func TestVerifyUnknownIdentifierIsGeneric(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	if _, err := store.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	_, unknownErr := store.Verify(ctx, "nobody@x.com", "secret1")
	_, wrongErr := store.Verify(ctx, "a@x.com", "wrong")

	// 未登録と誤パスワードが応答から区別できてはいけない
	if !errors.Is(unknownErr, ErrIncorrectCredential) {
		t.Fatalf("expected ErrIncorrectCredential for unknown identifier, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrIncorrectCredential) {
		t.Fatalf("expected ErrIncorrectCredential for wrong password, got %v", wrongErr)
	}
}

func TestVerifyWrongPasswordIncrementsCounter(t *testing.T) {
	store := newTestStore(t, Policy{MaxAttempts: 5})
	ctx := context.Background()

	identity, err := store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := store.Verify(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrIncorrectCredential) {
		t.Fatalf("expected ErrIncorrectCredential, got %v", err)
	}

	if got := reload(t, store, identity.ID); got.FailedCount != 1 {
		t.Fatalf("unexpected failed count: %d", got.FailedCount)
	}
}

func TestLockoutAfterThreshold(t *testing.T) {
	store := newTestStore(t, Policy{MaxAttempts: 5, LockDuration: 10 * time.Minute})
	ctx := context.Background()

	if _, err := store.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := store.Verify(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrIncorrectCredential) {
			t.Fatalf("attempt %d: expected ErrIncorrectCredential, got %v", i+1, err)
		}
	}

	// 閾値に達した失敗でロックされる
	if _, err := store.Verify(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	// 正しいパスワードでもロック中は拒否される
	if _, err := store.Verify(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrLockedTemporarily) {
		t.Fatalf("expected ErrLockedTemporarily, got %v", err)
	}
}

func TestLockoutExpiresAndResetsCounter(t *testing.T) {
	store := newTestStore(t, Policy{MaxAttempts: 3, LockDuration: 10 * time.Minute})
	ctx := context.Background()

	identity, err := store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, _ = store.Verify(ctx, "a@x.com", "wrong")
	}
	if _, err := store.Verify(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrLockedTemporarily) {
		t.Fatalf("expected ErrLockedTemporarily, got %v", err)
	}

	// ロック期間の経過後は成功し、失敗回数が巻き戻る
	store.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if _, err := store.Verify(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Verify after lock window failed: %v", err)
	}

	got := reload(t, store, identity.ID)
	if got.FailedCount != 0 {
		t.Fatalf("unexpected failed count: %d", got.FailedCount)
	}
	if got.LockedUntil != nil {
		t.Fatalf("expected lock to be cleared, got %v", got.LockedUntil)
	}
}

func TestChangePassword(t *testing.T) {
	store := newTestStore(t, Policy{})
	ctx := context.Background()

	identity, err := store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := store.ChangePassword(ctx, identity.ID, ""); !errors.Is(err, ErrMissingPassword) {
		t.Fatalf("expected ErrMissingPassword, got %v", err)
	}
	if err := store.ChangePassword(ctx, "no-such-id", "next2"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	if err := store.ChangePassword(ctx, identity.ID, "next2"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}

	if _, err := store.Verify(ctx, "a@x.com", "next2"); err != nil {
		t.Fatalf("Verify with new password failed: %v", err)
	}
	if _, err := store.Verify(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrIncorrectCredential) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
}

func TestSweepLockouts(t *testing.T) {
	store := newTestStore(t, Policy{MaxAttempts: 2, LockDuration: 10 * time.Minute})
	ctx := context.Background()

	identity, err := store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = store.Verify(ctx, "a@x.com", "wrong")
	}
	if got := reload(t, store, identity.ID); got.LockedUntil == nil {
		t.Fatal("expected identity to be locked")
	}

	// ロックが生きている間は掃除の対象にならない
	cleared, err := store.SweepLockouts(ctx)
	if err != nil {
		t.Fatalf("SweepLockouts error: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("unexpected cleared count: %d", cleared)
	}

	store.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	cleared, err = store.SweepLockouts(ctx)
	if err != nil {
		t.Fatalf("SweepLockouts error: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("unexpected cleared count: %d", cleared)
	}

	got := reload(t, store, identity.ID)
	if got.FailedCount != 0 || got.LockedUntil != nil {
		t.Fatalf("expected lockout to be cleared: %+v", got)
	}
}
