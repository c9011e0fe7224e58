package horosafe

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		want        string
		wantErr     bool
	}{
		{"/srv/dist", "index.html", "/srv/dist/index.html", false},
		{"/srv/dist", "docs/guide/index.html", "/srv/dist/docs/guide/index.html", false},
		{"/srv/dist", "/abs/page.html", "/srv/dist/abs/page.html", false},
		{"/srv/dist", "../etc/passwd", "", true},
		{"/srv/dist", "docs/../../outside.html", "", true},
	}
	for _, tt := range tests {
		got, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("SafePath(%q, %q): got %v, want ErrPathTraversal", tt.base, tt.input, err)
			}
			continue
		}
		if got != filepath.FromSlash(tt.want) {
			t.Errorf("SafePath(%q, %q): got %q, want %q", tt.base, tt.input, got, tt.want)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/page", false},
		{"http://example.com/", false},
		{"ftp://example.com/data", true},
		{"javascript:alert(1)", true},
		{"file:///etc/passwd", true},
		{"https:///nohost", true},
		{"http://127.0.0.1/admin", true},
		{"http://10.0.0.1/internal", true},
		{"http://[::1]/api", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateURL_AllowPrivate(t *testing.T) {
	if err := ValidateURL("http://127.0.0.1:8080/", AllowPrivate()); err != nil {
		t.Errorf("loopback with AllowPrivate: %v", err)
	}
	if err := ValidateURL("file:///tmp/x.html", AllowPrivate()); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("file scheme with AllowPrivate: got %v, want ErrUnsafeScheme", err)
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"docs", "marketing-site", "v1.2_beta"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a/b", "a b", strings.Repeat("x", 300)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	if _, err := LimitedReadAll(strings.NewReader("12345"), 4); err == nil {
		t.Error("expected error over limit")
	}
	data, err := LimitedReadAll(strings.NewReader("1234"), 4)
	if err != nil || string(data) != "1234" {
		t.Errorf("got %q, %v", data, err)
	}
}
