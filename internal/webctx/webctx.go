// Package webctx はリクエスト単位の表示用状態を保持します。
//
// ここに載る値（現在のユーザー、CSPノンス、フラッシュ）は1リクエストの
// 間だけ有効で、セッションの永続状態には含めません。
package webctx

import "github.com/gin-gonic/gin"

const contextKey = "webctx"

// フラッシュの種別。
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Identity は現在ログイン中ユーザーのスナップショットです。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Context は1リクエスト内で共有される状態です。
// リクエスト処理の先頭で一度だけ作られ、以後はフラッシュの消費を除いて
// 読み取り専用として扱います。
type Context struct {
	Identity *Identity
	Nonce    string

	flashes map[string][]string
}

// Attach は新しい Context を作って gin のコンテキストへ載せます。
func Attach(c *gin.Context) *Context {
	wc := &Context{flashes: make(map[string][]string)}
	c.Set(contextKey, wc)
	return wc
}

// Get は現在のリクエストの Context を返します。未作成なら作成します。
func Get(c *gin.Context) *Context {
	if v, ok := c.Get(contextKey); ok {
		if wc, ok := v.(*Context); ok {
			return wc
		}
	}
	return Attach(c)
}

// LoggedIn はログイン済みかどうかを返します。
func (wc *Context) LoggedIn() bool {
	return wc.Identity != nil
}

// Flash は一度だけ表示する通知を積みます。
func (wc *Context) Flash(kind, message string) {
	wc.flashes[kind] = append(wc.flashes[kind], message)
}

// Consume は指定種別のフラッシュを返し、同時に破棄します。
// 同じ種別を二度消費すると常に空になります。
func (wc *Context) Consume(kind string) []string {
	messages := wc.flashes[kind]
	delete(wc.flashes, kind)
	return messages
}
