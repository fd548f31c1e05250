package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		code     string
		host     string
		language string
	}{
		{"com", "www.amazon.com", "en-US,en;q=0.9"},
		{"co.uk", "www.amazon.co.uk", "en-GB,en;q=0.9"},
		{" DE ", "www.amazon.de", "de-DE,de;q=0.9,en;q=0.8"},
		{".co.jp", "www.amazon.co.jp", "ja-JP,ja;q=0.9,en;q=0.8"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			m, err := Resolve(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.host, m.Host)
			assert.Equal(t, tt.language, m.AcceptLanguage)
			assert.Equal(t, "https://"+tt.host, m.BaseURL())
		})
	}
}

func TestResolveUnsupported(t *testing.T) {
	for _, code := range []string{"", "xyz", "amazon.com", "uk"} {
		_, err := Resolve(code)
		assert.ErrorIs(t, err, ErrUnsupportedDomain, code)
	}
}

func TestCodesCoversCoreMarketplaces(t *testing.T) {
	codes := Codes()
	assert.GreaterOrEqual(t, len(codes), 15)
	for _, code := range []string{"com", "de", "fr", "it", "es", "nl", "co.uk", "com.au", "ca", "co.jp", "com.mx", "com.tr", "ae", "sg", "sa"} {
		assert.Contains(t, codes, code)
	}
}
