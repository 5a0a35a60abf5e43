package exchange

import (
	"net/http"
	"testing"
)

func TestResolveMethod(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", http.MethodGet, true},
		{"GET", "GET", true},
		{"propfind", "propfind", true},
		{"PROPPATCH", "PROPPATCH", true},
		{"GE", "", false},
		{"ABCDEFGHIJK", "", false},
		{"M-SEARCH", "", false},
		{" GET", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveMethod(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveMethod(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsExtensionVerb(t *testing.T) {
	for _, m := range ExtensionVerbs() {
		if !IsExtensionVerb(m) {
			t.Errorf("%s should be an extension verb", m)
		}
	}
	for _, m := range []string{"mkcol", "Unlock", "copy"} {
		if !IsExtensionVerb(m) {
			t.Errorf("%s should match case-insensitively", m)
		}
	}
	for _, m := range []string{"GET", "POST", "PATCH", "SEARCH", ""} {
		if IsExtensionVerb(m) {
			t.Errorf("%s should not be an extension verb", m)
		}
	}
}

func TestFoldHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Add("DAV", "1, 2")
	got := foldHeaders(h)
	if got["set-cookie"] != "a=1,b=2" {
		t.Fatalf("set-cookie = %q", got["set-cookie"])
	}
	if got["dav"] != "1, 2" {
		t.Fatalf("dav = %q", got["dav"])
	}
}

func TestReasonPhrase(t *testing.T) {
	if got := reasonPhrase(207, "207 Multi-Status"); got != "Multi-Status" {
		t.Fatalf("got %q", got)
	}
	if got := reasonPhrase(404, "404"); got != "Not Found" {
		t.Fatalf("got %q", got)
	}
}

func TestMethodLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "GET"},
		{"get", "GET"},
		{"DELETE", "DELETE"},
		{"propfind", "PROPFIND"},
		{"UNLOCK", "UNLOCK"},
		{"FOOBAR", OtherMethodLabel},
		{"purge", OtherMethodLabel},
		{"not a verb at all", OtherMethodLabel},
	}
	for _, tt := range tests {
		if got := MethodLabel(tt.in); got != tt.want {
			t.Errorf("MethodLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
