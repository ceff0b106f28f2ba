package shortener

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLocator(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"https://example.com/x":             "https://example.com/x",
		"  https://example.com/x  ":         "https://example.com/x",
		"HTTPS://Example.COM/Path?q=1":      "https://example.com/Path?q=1",
		"http://example.com:8080/a#section": "http://example.com:8080/a",
		"https://user@example.com/":         "https://user@example.com/",
	}
	for in, want := range valid {
		got, err := NormalizeLocator(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	invalid := []string{
		"",
		"invalid-url",
		"/relative/path",
		"example.com/x",
		"ftp://example.com/file",
		"https://",
		"https:opaque",
		"javascript:alert(1)",
		"http://[::1", // unterminated IPv6 literal
	}
	for _, in := range invalid {
		_, err := NormalizeLocator(in)
		require.ErrorIs(t, err, ErrInvalidLocator, in)
	}
}

func TestNanoID(t *testing.T) {
	t.Parallel()

	gen := NanoID(0)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := gen()
		require.NoError(t, err)
		require.Len(t, id, DefaultIDLength)
		require.Regexp(t, `^[A-Za-z0-9_-]+$`, id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 1000)

	id, err := NanoID(8)()
	require.NoError(t, err)
	require.Len(t, id, 8)
}
