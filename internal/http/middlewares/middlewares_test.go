package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), tag("a"), tag("b"), tag("c"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"a", "b", "c", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	// Client-supplied id is propagated.
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-ID", "rid-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if seen != "rid-123" || w.Header().Get("X-Request-ID") != "rid-123" {
		t.Fatalf("seen=%q header=%q", seen, w.Header().Get("X-Request-ID"))
	}

	// Absent id is generated.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if seen == "" || seen == "rid-123" {
		t.Fatalf("generated id = %q", seen)
	}
	if w.Header().Get("X-Request-ID") != seen {
		t.Fatal("generated id not echoed")
	}
}

func TestWithCSRF(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Chain(ok, WithCSRF(CSRFConfig{}))

	do := func(mutate func(*http.Request)) int {
		r := httptest.NewRequest("POST", "/", nil)
		if mutate != nil {
			mutate(r)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	if code := do(nil); code != http.StatusForbidden {
		t.Fatalf("missing token: %d", code)
	}
	if code := do(func(r *http.Request) {
		r.Header.Set("X-CSRF-Token", "tok")
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "other"})
	}); code != http.StatusForbidden {
		t.Fatalf("mismatched token: %d", code)
	}
	if code := do(func(r *http.Request) {
		r.Header.Set("X-CSRF-Token", "tok")
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	}); code != http.StatusNoContent {
		t.Fatalf("matching token: %d", code)
	}
	if code := do(func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer abc")
	}); code != http.StatusNoContent {
		t.Fatalf("bearer skip: %d", code)
	}

	// Safe methods pass untouched.
	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("GET: %d", w.Code)
	}
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), WithRecover())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic leaked status %d", w.Code)
	}
}
