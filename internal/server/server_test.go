package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iabetor/accentts/internal/core"
)

type fakeGenerator struct {
	out      []byte
	err      error
	text     string
	override string
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, text, override string) ([]byte, error) {
	f.calls++
	f.text, f.override = text, override
	return f.out, f.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var er errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func TestTTS_Success(t *testing.T) {
	gen := &fakeGenerator{out: []byte("ID3fake-mp3")}
	h := New(gen, Options{}).Handler()

	rec := post(t, h, `{"text":"  안녕하세요  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=tts_output.mp3" {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if rec.Body.String() != "ID3fake-mp3" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if gen.text != "안녕하세요" {
		t.Errorf("generator received %q", gen.text)
	}
}

func TestTTS_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"text":`},
		{"missing text", `{}`},
		{"blank text", `{"text":"   "}`},
		{"too long", `{"text":"` + strings.Repeat("가", 11) + `"}`},
		{"override not allowed", `{"text":"안녕","reference":"/etc/passwd"}`},
	}
	for _, tt := range tests {
		gen := &fakeGenerator{out: []byte("x")}
		rec := post(t, New(gen, Options{MaxTextChars: 10}).Handler(), tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, rec.Code)
		}
		if gen.calls != 0 {
			t.Errorf("%s: generator should not be called", tt.name)
		}
	}
}

func TestTTS_ReferenceOverride(t *testing.T) {
	gen := &fakeGenerator{out: []byte("x")}
	h := New(gen, Options{AllowReferenceOverride: true}).Handler()

	rec := post(t, h, `{"text":"안녕","reference":"/refs/texas.wav"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gen.override != "/refs/texas.wav" {
		t.Errorf("override not forwarded: %q", gen.override)
	}
}

func TestTTS_ErrorMapping(t *testing.T) {
	tests := []struct {
		kind core.Kind
		want int
	}{
		{core.KindTextValidation, http.StatusBadRequest},
		{core.KindReferenceNotFound, http.StatusServiceUnavailable},
		{core.KindModelLoad, http.StatusServiceUnavailable},
		{core.KindReferenceDecode, http.StatusInternalServerError},
		{core.KindEmbeddingExtraction, http.StatusInternalServerError},
		{core.KindSynthesis, http.StatusInternalServerError},
		{core.KindConversion, http.StatusInternalServerError},
		{core.KindEncoding, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		gen := &fakeGenerator{err: core.E(tt.kind, "test", errors.New("boom"))}
		rec := post(t, New(gen, Options{}).Handler(), `{"text":"안녕"}`)
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.kind, tt.want, rec.Code)
			continue
		}
		if er := decodeError(t, rec); er.ErrorCode != tt.kind.String() {
			t.Errorf("%s: unexpected error code %q", tt.kind, er.ErrorCode)
		}
	}
}

func TestTTS_RateLimit(t *testing.T) {
	gen := &fakeGenerator{out: []byte("x")}
	h := New(gen, Options{RateLimit: 0.001, RateBurst: 1}).Handler()

	if rec := post(t, h, `{"text":"안녕"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := post(t, h, `{"text":"안녕"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := New(&fakeGenerator{}, Options{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h = New(&fakeGenerator{}, Options{Ready: func(context.Context) error { return errors.New("sidecar down") }}).Handler()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := New(&fakeGenerator{}, Options{}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/tts", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestStaticIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>accentts</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	h := New(&fakeGenerator{}, Options{StaticDir: dir}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "accentts") {
		t.Fatalf("expected index page, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReferenceReload(t *testing.T) {
	h := New(&fakeGenerator{}, Options{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reference/reload", nil))
	if rec.Code == http.StatusOK {
		t.Fatal("reload route should not exist without a handler")
	}

	calls := 0
	h = New(&fakeGenerator{}, Options{ReloadReference: func() []string {
		calls++
		return []string{"/refs/texas.wav"}
	}}).Handler()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reference/reload", nil))
	if rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected 200 and one reload, got %d and %d", rec.Code, calls)
	}
	var body struct {
		Cleared []string `json:"cleared"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Cleared) != 1 || body.Cleared[0] != "/refs/texas.wav" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
