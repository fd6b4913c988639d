package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
)

func TestBuildNewsUsesFinalURL(t *testing.T) {
	t.Parallel()

	want, err := entity.BuildNews("https://jp.reuters.test/article/id1", "ロイター")
	require.NoError(t, err)

	got, err := BuildNews(crawler.FetchResponse{URL: "HTTPS://JP.Reuters.test:443/article/id1#main"},
		"https://feeds.reuters.test/r/id1", "ロイター")
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = BuildNews(crawler.FetchResponse{}, "https://jp.reuters.test/article/id1", "ロイター")
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
}

func TestBuildNewsRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := BuildNews(crawler.FetchResponse{URL: "/article/id1"}, "", "ロイター")
	require.ErrorIs(t, err, entity.ErrMalformedInput)
}
