package streamtest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"time"
)

// StaticFileServer starts an httptest server that serves exactly size
// bytes of TestData at "/stream_test", with standard byte-range support
// via http.ServeContent. Callers must Close() the returned server.
func StaticFileServer(size uint32) *httptest.Server {
	data := TestData(size)
	mux := http.NewServeMux()
	mux.HandleFunc("/stream_test", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "stream_test", time.Time{}, bytes.NewReader(data))
	})
	return httptest.NewServer(mux)
}
