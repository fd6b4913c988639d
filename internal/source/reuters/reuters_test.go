package reuters

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/news"
	searchmem "github.com/sarcastic555/politylink-crawler/internal/search/memory"
	"github.com/sarcastic555/politylink-crawler/internal/source/sourcetest"
)

const baseURL = "https://reuters.test/news/archive/politicsNews"

func listPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><section id="moreSectionNews">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<article><a href="/article/%s">headline</a><a href="/article/%s">more</a></article>`, id, id)
	}
	b.WriteString(`</section><a href="/article/outside">not an archive item</a></body></html>`)
	return b.String()
}

func articlePage(title string) string {
	return `<html><head><script type="application/ld+json">
{"image":"https://static.reuters.test/t.jpg","datePublished":"2020-06-01T03:04:05Z","dateModified":"2020-06-01T04:04:05Z"}
</script></head><body><h1>` + title + `</h1>
<div class="ArticleBodyWrapper"><p>本文一。</p><p>本文二。</p></div></body></html>`
}

type fixture struct {
	env   *sourcetest.Env
	index *searchmem.Indexer
	src   *Source
}

func newFixture(t *testing.T, limit int) fixture {
	t.Helper()
	env := sourcetest.NewEnv(t)
	index := searchmem.NewIndexer()
	writer := news.NewWriter(env.Store, index, env.Deps.Logger)
	src, err := New(Config{Limit: limit, BaseURL: baseURL}, env.Deps, writer)
	require.NoError(t, err)
	return fixture{env: env, index: index, src: src}
}

func (f fixture) setArticle(id, title string) {
	f.env.Fetcher.Set("https://reuters.test/article/"+id, "text/html", articlePage(title))
}

func TestRunStopsAtLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	f.env.Fetcher.Set(f.src.PageURL(1), "text/html", listPage("a1", "a2"))
	f.env.Fetcher.Set(f.src.PageURL(2), "text/html", listPage("a3", "a4"))
	f.env.Fetcher.Set(f.src.PageURL(3), "text/html", listPage("a5"))
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		f.setArticle(id, "見出し"+id)
	}

	state, err := crawler.NewRunner(nil, nil).Run(context.Background(), f.src)
	require.NoError(t, err)
	require.Equal(t, crawler.State{Cursor: 2, Emitted: 4}, state)
	require.Equal(t, 4, f.env.Store.CountKind(entity.KindNews))
	require.Equal(t, 4, f.index.Len())
	require.NotContains(t, f.env.Fetcher.Requests(), f.src.PageURL(3))
}

func TestStepStoresJSONLDFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.env.Fetcher.Set(f.src.PageURL(1), "text/html", listPage("a1"))
	f.setArticle("a1", " 首相が会見 ")

	res, err := f.src.Step(context.Background(), crawler.State{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Merged)

	n, err := entity.BuildNews("https://reuters.test/article/a1", Publisher)
	require.NoError(t, err)
	node, err := f.env.Store.Get(context.Background(), n.ID)
	require.NoError(t, err)
	require.Equal(t, "首相が会見", node.Props["title"])
	require.Equal(t, "https://static.reuters.test/t.jpg", node.Props["thumbnail"])
	require.Equal(t, false, node.Props["is_paid"])
	require.Contains(t, node.Props, "published_at")
	require.Contains(t, node.Props, "last_modified_at")

	docs, err := f.index.Search(context.Background(), "本文一", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, n.ID, docs[0].ID)
	require.Equal(t, "本文一。本文二。", docs[0].Body)
}

func TestArticleWithoutTitleIsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.env.Fetcher.Set(f.src.PageURL(1), "text/html", listPage("a1", "a2"))
	f.setArticle("a1", "見出し")
	f.env.Fetcher.Set("https://reuters.test/article/a2", "text/html",
		`<html><body><div class="ArticleBodyWrapper"><p>本文だけ。</p></div></body></html>`)

	res, err := f.src.Step(context.Background(), crawler.State{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Merged)
	require.Equal(t, 1, res.Stats.Skipped)
	require.Equal(t, 1, f.env.Store.CountKind(entity.KindNews))
	require.Equal(t, 1, f.index.Len())
}

func TestEmptyArchivePageEndsCrawl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 100)
	f.env.Fetcher.Set(f.src.PageURL(1), "text/html", listPage())

	res, err := f.src.Step(context.Background(), crawler.State{})
	require.NoError(t, err)
	require.True(t, res.Done)
}

func TestNewValidatesLimit(t *testing.T) {
	t.Parallel()

	env := sourcetest.NewEnv(t)
	_, err := New(Config{}, env.Deps, news.NewWriter(env.Store, searchmem.NewIndexer(), nil))
	require.Error(t, err)
}
