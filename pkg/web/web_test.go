package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sirrobot01/zipfetch/internal/config"
	"github.com/sirrobot01/zipfetch/internal/testutil"
)

func newTestWeb(t *testing.T, allowedPrefixes []string, token string) http.Handler {
	t.Helper()

	config.SetConfigPath("")
	config.Reload()
	cfg := config.Get()
	cfg.AllowedPrefixes = allowedPrefixes
	if token != "" {
		cfg.UseAuth = true
		cfg.Auth = &config.Auth{APIToken: token}
	}
	t.Cleanup(func() {
		config.SetConfigPath("")
		config.Reload()
	})
	return New().Routes()
}

func serveArchive(t *testing.T, specs ...testutil.FileSpec) *httptest.Server {
	t.Helper()
	srv := testutil.Serve(testutil.BuildArchive(specs...))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, handler http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleListEntries(t *testing.T) {
	srv := serveArchive(t,
		testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("hello")},
		testutil.FileSpec{Name: "dir/b.txt", Method: 8, Data: []byte("world world world")},
	)
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/entries?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var listing entryListing
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Invalid JSON listing: %v", err)
	}
	if len(listing.Files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(listing.Files))
	}
	if listing.Files[0].Name != "a.txt" || listing.Files[1].Name != "dir/b.txt" {
		t.Errorf("Unexpected listing order: %v", listing.Files)
	}
}

func TestHandleListEntries_MissingURL(t *testing.T) {
	handler := newTestWeb(t, nil, "secret")
	rec := get(t, handler, "/entries", map[string]string{"Authorization": "secret"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestHandleReadEntry(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "dir/b.txt", Method: 8, Data: []byte("nested entry content")})
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/entries/dir/b.txt?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "nested entry content" {
		t.Errorf("Unexpected body: %q", rec.Body.String())
	}
}

func TestHandleReadEntry_NotFound(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("x")})
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/entries/missing.txt?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestHandleEntryBytes(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("0123456789")})
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/entry-bytes/a.txt?start=2&end=5&url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "2345" {
		t.Errorf("Expected 2345, got %q", rec.Body.String())
	}
	if cl := rec.Header().Get("Content-Length"); cl != "4" {
		t.Errorf("Expected Content-Length 4, got %q", cl)
	}
}

func TestHandleEntryBytes_MissingParams(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("0123456789")})
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/entry-bytes/a.txt?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without start param, got %d", rec.Code)
	}

	rec = get(t, handler, "/entry-bytes/a.txt?start=0&end=99&url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("Expected 416 for an out of bounds range, got %d", rec.Code)
	}
}

func TestHandleArchiveSize(t *testing.T) {
	data := testutil.BuildArchive(testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("x")})
	srv := testutil.Serve(data)
	t.Cleanup(srv.Close)
	handler := newTestWeb(t, []string{srv.URL}, "")

	rec := get(t, handler, "/archive-size?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var size int64
	if err := json.Unmarshal(rec.Body.Bytes(), &size); err != nil {
		t.Fatalf("Invalid JSON size: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), size)
	}
}

func TestAuthorize_RejectsUnlistedURL(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("x")})
	handler := newTestWeb(t, nil, "secret")

	rec := get(t, handler, "/entries?url="+url.QueryEscape(srv.URL), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rec.Code)
	}

	rec = get(t, handler, "/entries?url="+url.QueryEscape(srv.URL), map[string]string{"Authorization": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with token, got %d: %s", rec.Code, rec.Body)
	}
}

func TestAuthorize_BasicAuth(t *testing.T) {
	srv := serveArchive(t, testutil.FileSpec{Name: "a.txt", Method: 0, Data: []byte("x")})
	handler := newTestWeb(t, nil, "secret")

	hash, err := config.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	config.Get().Auth.Username = "admin"
	config.Get().Auth.Password = hash

	basicGet := func(username, password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/entries?url="+url.QueryEscape(srv.URL), nil)
		req.SetBasicAuth(username, password)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := basicGet("admin", "hunter2"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with valid credentials, got %d: %s", rec.Code, rec.Body)
	}
	if rec := basicGet("admin", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with a wrong password, got %d", rec.Code)
	}
	if rec := basicGet("other", "hunter2"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with a wrong username, got %d", rec.Code)
	}
}
