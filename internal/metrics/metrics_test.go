package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://kokkai.ndl.go.jp/api/meeting", "kokkai.ndl.go.jp"},
		{"mixed case", "https://JP.Reuters.com/news", "jp.reuters.com"},
		{"no scheme", "www.webtv.sangiin.go.jp/webtv", "www.webtv.sangiin.go.jp"},
		{"host with port", "localhost:9200", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := resolverOutcomesTotal
	Init()
	require.Same(t, first, resolverOutcomesTotal)
}

func TestObserveCounters(t *testing.T) {
	ObserveResolve("Test", "found")
	ObserveResolve("Test", "found")
	require.Equal(t, float64(2), testutil.ToFloat64(resolverOutcomesTotal.WithLabelValues("Test", "found")))

	ObserveMerged("TestKind", 3)
	ObserveMerged("TestKind", 0)
	require.Equal(t, float64(3), testutil.ToFloat64(entitiesMergedTotal.WithLabelValues("TestKind")))

	ObserveFetch("https://test.example/page", "200", 512)
	require.Equal(t, float64(512), testutil.ToFloat64(fetchBytesTotal.WithLabelValues("test.example")))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"https://kokkai.ndl.go.jp", "jp.reuters.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
