package api

import "net/http"

// maxUploadBytes bounds one multipart submission: spreadsheet plus image
// archive.
const maxUploadBytes = 256 << 20

// LimitUploadSize rejects request bodies larger than n bytes. The limit is
// enforced while the handler reads, so oversized uploads fail in
// ParseMultipartForm.
func LimitUploadSize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
