package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips fragment",
			in:   "https://docs.example.com/install#prerequisites",
			want: "https://docs.example.com/install",
		},
		{
			name: "sorts query parameters",
			in:   "https://docs.example.com/search?page=2&lang=en",
			want: "https://docs.example.com/search?lang=en&page=2",
		},
		{
			name: "lowercases",
			in:   "HTTPS://Docs.Example.COM/Install",
			want: "https://docs.example.com/install",
		},
		{
			name: "trims trailing slash",
			in:   "https://docs.example.com/install/",
			want: "https://docs.example.com/install",
		},
		{
			name: "keeps root slash",
			in:   "https://docs.example.com/",
			want: "https://docs.example.com/",
		},
		{
			name: "trims whitespace",
			in:   "  https://docs.example.com/install ",
			want: "https://docs.example.com/install",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	in := "https://Docs.Example.com/a/b/?z=1&a=2#frag"
	once := NormalizeURL(in)
	assert.Equal(t, once, NormalizeURL(once))
}

func TestInScope(t *testing.T) {
	root := "https://docs.example.com/en-us/azure"

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"same path", "https://docs.example.com/en-us/azure", true},
		{"child path", "https://docs.example.com/en-us/azure/aks/install", true},
		{"sibling path", "https://docs.example.com/en-us/windows", false},
		{"prefix but not segment", "https://docs.example.com/en-us/azuread", false},
		{"different host", "https://blog.example.com/en-us/azure", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InScope(root, tt.candidate))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("# Install\n\nRun the script."))
	b := Fingerprint([]byte("# Install\n\nRun the script."))
	c := Fingerprint([]byte("# Install\n\nRun the other script."))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
