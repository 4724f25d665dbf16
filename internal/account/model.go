package account

import (
	"strings"
	"time"
)

// Identity は登録済みユーザーを表します。
// PasswordHash は書き込み専用で、照合は Store.Verify 経由でのみ行います。
type Identity struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FailedCount  int        `gorm:"not null;default:0" json:"-"`
	LockedUntil  *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Locked は now 時点でロックアウト中かどうかを返します。
func (i *Identity) Locked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// NormalizeEmail は識別子の大文字小文字ゆれを吸収します。
// 登録・照合の双方で同じ正規化を通します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
