package shortener

import (
	"errors"
	"testing"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path?q=1#frag",
		"https://sub.domain.example.com:8443/a/b",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("ValidateURL(%q): unexpected error: %v", u, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"http://",
		"//example.com",
	}
	for _, u := range invalid {
		if err := ValidateURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("ValidateURL(%q): got %v, want ErrInvalidURL", u, err)
		}
	}
}
