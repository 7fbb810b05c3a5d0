package cache

import (
	"strings"
	"testing"
)

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Key
	}{
		{
			name: "page index",
			url:  "https://bama.ir/cad/api/search?pageIndex=7",
			want: "bama:page:bama.ir/cad/api/search?pageIndex=7",
		},
		{
			name: "scheme ignored",
			url:  "http://bama.ir/cad/api/search?pageIndex=7",
			want: "bama:page:bama.ir/cad/api/search?pageIndex=7",
		},
		{
			name: "query sorted",
			url:  "https://bama.ir/cad/api/search?pageIndex=1&brand=peugeot",
			want: "bama:page:bama.ir/cad/api/search?brand=peugeot&pageIndex=1",
		},
		{
			name: "fragment dropped",
			url:  "https://bama.ir/cad/api/search?pageIndex=2#top",
			want: "bama:page:bama.ir/cad/api/search?pageIndex=2",
		},
		{
			name: "no query",
			url:  "http://127.0.0.1:8080/search",
			want: "bama:page:127.0.0.1:8080/search",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyForURL(tt.url)
			if err != nil {
				t.Fatalf("KeyForURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("KeyForURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyForURL_Invalid(t *testing.T) {
	for _, raw := range []string{"://bad", "/search?pageIndex=1"} {
		if _, err := KeyForURL(raw); err == nil {
			t.Errorf("KeyForURL(%q) expected error", raw)
		}
	}
}

func TestKeyForURL_DistinctPages(t *testing.T) {
	seen := make(map[Key]bool)
	for _, raw := range []string{
		"https://bama.ir/cad/api/search?pageIndex=1",
		"https://bama.ir/cad/api/search?pageIndex=10",
		"https://bama.ir/cad/api/search?pageIndex=11",
	} {
		k, err := KeyForURL(raw)
		if err != nil {
			t.Fatalf("KeyForURL() error = %v", err)
		}
		if seen[k] {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = true
		if !strings.HasPrefix(string(k), KeyPrefix) {
			t.Errorf("key %q lacks prefix", k)
		}
	}
}
