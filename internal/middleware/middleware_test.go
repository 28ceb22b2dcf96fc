package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestInternalOnly(t *testing.T) {
	h := InternalOnly(okHandler)
	cases := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"192.168.1.5:5000", http.StatusForbidden},
		{"10.0.0.1:5000", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.RemoteAddr = c.remote
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: code = %d, want %d", c.remote, rec.Code, c.want)
		}
	}
}

func TestInternalOnly_Token(t *testing.T) {
	t.Setenv("CONTROL_TOKEN", "s3cret")
	h := InternalOnly(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("without token: %d", rec.Code)
	}

	req.Header.Set(ControlTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: %d", rec.Code)
	}
}

func TestRecoverJSON(t *testing.T) {
	h := RequestLog(RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/random/find", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Fatalf("body = %v, err = %v", body, err)
	}
}

func TestRecoverJSON_AfterWrite(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want the already written 202", rec.Code)
	}
}

func TestRequestLog_RequestID(t *testing.T) {
	var seen string
	h := RequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "ui-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "ui-42" {
		t.Fatalf("id = %q, want the one sent by the UI", seen)
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(okHandler)
	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/random/find", nil)
		req.RemoteAddr = "127.0.0.1:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if post() != http.StatusOK || post() != http.StatusOK {
		t.Fatal("requests under the limit rejected")
	}
	if got := post(); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", got)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatal("GET counted against the limit")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := newRateLimiter(1, time.Second)
	now := time.Now()
	if !rl.allow("a", now) || rl.allow("a", now.Add(500*time.Millisecond)) {
		t.Fatal("limit not applied inside the window")
	}
	if !rl.allow("a", now.Add(2*time.Second)) {
		t.Fatal("limit not released after the window")
	}
}

func TestMaskSessionToken(t *testing.T) {
	if got := MaskSessionToken("abcdef123"); got != "abcd***" {
		t.Fatalf("got %q", got)
	}
	if got := MaskSessionToken("ab"); got != "****" {
		t.Fatalf("got %q", got)
	}
}
