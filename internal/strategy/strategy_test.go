package strategy

import (
	"net/http/httptest"
	"testing"
)

func TestOptionsClone(t *testing.T) {
	orig := Options{"client_id": "cid", "debug": true}
	cp := orig.Clone()
	cp["client_id"] = "other"

	if orig.String("client_id", "") != "cid" {
		t.Fatal("clone mutation leaked into the original")
	}

	var nilOpts Options
	cp = nilOpts.Clone()
	cp["k"] = "v" // must not panic
}

func TestOptionsAccessors(t *testing.T) {
	o := Options{"s": "str", "b": true, "n": 42}

	if o.String("s", "d") != "str" || o.String("missing", "d") != "d" {
		t.Fatal("String accessor")
	}
	// Wrong type falls back to the default.
	if o.String("n", "d") != "d" {
		t.Fatal("String on non-string")
	}
	if !o.Bool("b", false) || o.Bool("missing", true) != true {
		t.Fatal("Bool accessor")
	}
}

func TestResponseHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	Redirect("/next").Write(w)
	if w.Code != 302 || w.Header().Get("Location") != "/next" {
		t.Fatalf("redirect: %d %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	HTML("<p>hi</p>").Write(w)
	if w.Code != 200 || w.Body.String() != "<p>hi</p>" {
		t.Fatalf("html: %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	NotAllowed("GET", "POST").Write(w)
	if w.Code != 405 {
		t.Fatalf("not allowed: %d", w.Code)
	}
	if got := w.Result().Header.Values("Allow"); len(got) != 2 {
		t.Fatalf("allow = %v", got)
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := &Payload{Info: map[string]any{"email": "a@b.c", "name": "A"}}
	if p.Email() != "a@b.c" || p.Name() != "A" {
		t.Fatal("info accessors")
	}

	var nilPayload *Payload
	if nilPayload.Email() != "" {
		t.Fatal("nil payload should read as empty")
	}
}

func TestRandomTokenUniqueness(t *testing.T) {
	a, b := RandomToken(), RandomToken()
	if len(a) != 32 || a == b {
		t.Fatalf("tokens: %q %q", a, b)
	}
}
