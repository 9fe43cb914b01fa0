package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	testCases := []struct {
		name     string
		logLevel string
		expected string
	}{
		{"debug", "debug", "debug"},
		{"info", "info", "info"},
		{"warn", "warn", "warn"},
		{"error", "error", "error"},
		{"unknown", "chatty", "info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setLogLevel(tc.logLevel)
			assert.Equal(t, tc.expected, zerolog.GlobalLevel().String())
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	testCases := []struct {
		name     string
		resolve  []string
		expected map[string]string
		err      bool
	}{
		{"empty", []string{}, nil, false},
		{"single", []string{"example.com:80:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80"}, false},
		{"multiple", []string{"example.com:80:127.0.0.1", "example.com:443:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80", "example.com:443": "127.0.0.1:443"}, false},
		{"invalid ip", []string{"example.com:80:InvalidIPAddr"}, nil, true},
		{"duplicate host different target", []string{"example.com:80:127.0.0.1", "example.com:80:127.0.0.2"}, nil, true},
		{"duplicate host same target", []string{"example.com:80:127.0.0.1", "example.com:80:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80"}, false},
		{"invalid format", []string{"example.com:80"}, nil, true},
		{"invalid hostname format, is IP Addr", []string{"127.0.0.1:443:127.0.0.2"}, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolveOverrides, err := ResolveOverridesToMap(tc.resolve)
			assert.Equal(t, tc.err, err != nil)
			assert.Equal(t, tc.expected, resolveOverrides)
		})
	}
}

func TestParseMaxSize(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		expected int64
		err      bool
	}{
		{"empty", "", 0, false},
		{"bytes", "512", 512, false},
		{"kilobytes", "10K", 10 * 1000, false},
		{"mebibytes", "16MiB", 16 * 1024 * 1024, false},
		{"garbage", "lots", 0, true},
		{"largest", "7EiB", 7 << 60, false},
		{"overflows int64", "8EiB", 0, true},
		{"far beyond int64", "10EiB", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			size, err := ParseMaxSize(tc.value)
			assert.Equal(t, tc.err, err != nil)
			assert.Equal(t, tc.expected, size)
		})
	}
}

func TestHeadersFromFlags(t *testing.T) {
	header, err := HeadersFromFlags([]string{"Authorization: Bearer abc", "X-Trace:1", "X-Trace: 2"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", header.Get("Authorization"))
	assert.Equal(t, []string{"1", "2"}, header.Values("X-Trace"))

	_, err = HeadersFromFlags([]string{"no-colon"})
	assert.Error(t, err)

	header, err = HeadersFromFlags(nil)
	assert.NoError(t, err)
	assert.Equal(t, http.Header(nil), header)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("BATCHGET_TEST_A=base\nBATCHGET_TEST_B=base\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("BATCHGET_TEST_B=local\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("BATCHGET_TEST_A")
		os.Unsetenv("BATCHGET_TEST_B")
	})

	require.NoError(t, LoadDotEnv(base, local, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "base", os.Getenv("BATCHGET_TEST_A"))
	assert.Equal(t, "local", os.Getenv("BATCHGET_TEST_B"))
}
