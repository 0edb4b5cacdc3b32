package middleware

import (
	"crypto/subtle"
	"net/http"
)

// NewSecretMiddleware は内部APIの共有シークレット検証ミドルウェアを返す。
// X-Regenerate-Secretヘッダが設定値と一致しないリクエストを401で拒否する。
// 比較は一定時間比較で行う。
func NewSecretMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Regenerate-Secret")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
