package middleware

import (
	"crypto/subtle"
	"net/http"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey пропускает запрос только с заголовком X-Admin-Key, совпадающим с key.
// Пустой key отключает административные маршруты.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				reject(w, http.StatusNotFound, `{"message":"not found"}`)
				return
			}

			got := r.Header.Get(adminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				reject(w, http.StatusForbidden, `{"message":"forbidden"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
