package account

import (
	"net/http"

	"github.com/yourusername/camp-trail/internal/httpx"
)

// ユーザーへ表示するエラー一覧。文言は既存サービスの訳をそのまま使います。
//
// 未登録の識別子と誤ったパスワードは、どちらも ErrIncorrectCredential に
// 寄せます。識別子の存在を応答から推測させないためです。
var (
	ErrMissingIdentifier = &httpx.Error{
		Status:  http.StatusBadRequest,
		Code:    "MISSING_IDENTIFIER",
		Message: "メールアドレスを入力してください",
	}
	ErrMissingPassword = &httpx.Error{
		Status:  http.StatusBadRequest,
		Code:    "MISSING_PASSWORD",
		Message: "パスワードは与えられていません",
	}
	ErrIdentityExists = &httpx.Error{
		Status:  http.StatusConflict,
		Code:    "IDENTITY_EXISTS",
		Message: "そのメールアドレスはすでに使われています",
	}
	ErrIncorrectCredential = &httpx.Error{
		Status:  http.StatusUnauthorized,
		Code:    "INCORRECT_CREDENTIAL",
		Message: "パスワードまたはメールアドレスが誤りです",
	}
	ErrLockedTemporarily = &httpx.Error{
		Status:  http.StatusTooManyRequests,
		Code:    "LOCKED_TEMPORARILY",
		Message: "アカウントは現在ロックされています。後でもう一度試してください",
	}
	ErrTooManyAttempts = &httpx.Error{
		Status:  http.StatusTooManyRequests,
		Code:    "TOO_MANY_ATTEMPTS",
		Message: "ログイン失敗が多すぎるためアカウントをロックしました",
	}
	ErrNoCredentialStored = &httpx.Error{
		Status:  http.StatusInternalServerError,
		Code:    "NO_CREDENTIAL_STORED",
		Message: "認証情報が保存されていないためログインできません",
	}
	ErrIdentityNotFound = &httpx.Error{
		Status:  http.StatusNotFound,
		Code:    "IDENTITY_NOT_FOUND",
		Message: "ページが見つかりませんでした",
	}
	ErrStoreUnavailable = &httpx.Error{
		Status:  http.StatusInternalServerError,
		Code:    "STORE_UNAVAILABLE",
		Message: "問題が起きました",
	}
)
