package sangiintv

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
	"github.com/sarcastic555/politylink-crawler/internal/source/sourcetest"
	storage "github.com/sarcastic555/politylink-crawler/internal/storage/memory"
)

const baseURL = "https://webtv.test/webtv/detail.php"

var (
	memberID    = uuid.Derive("Member", "山田太郎")
	committeeID = uuid.Derive("Committee", "予算委員会")
)

const detailPage = `<html><body>
<div id="detail-contents-inner">
  <dl><dt>開会日</dt><dd>2020年6月1日</dd></dl>
  <dl><dt>会議名</dt><dd>予算委員会</dd></dl>
  <span> 令和二年度補正予算について </span>
  <span>質疑を行った。</span>
  <ul>
    <li>令和二年度一般会計補正予算（第２号）</li>
    <li><a href="detail.php?sid=101#00:12:30">山田太郎（自由民主党）</a></li>
    <li><a href="detail.php?sid=101#01:02:03">鈴木花子（立憲民主党）</a></li>
  </ul>
</div>
</body></html>`

func newEnv(t *testing.T) *sourcetest.Env {
	t.Helper()
	return sourcetest.NewEnv(t,
		entity.Canonical{ID: memberID, Kind: entity.KindMember, Name: "山田太郎"},
		entity.Canonical{ID: committeeID, Kind: entity.KindCommittee, Name: "予算委員会"},
	)
}

func newSource(t *testing.T, env *sourcetest.Env, cfg Config) *Source {
	t.Helper()
	cfg.BaseURL = baseURL
	src, err := New(cfg, env.Deps, env.Store)
	require.NoError(t, err)
	return src
}

func TestParseDetail(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(detailPage))
	require.NoError(t, err)
	d, err := ParseDetail(doc)
	require.NoError(t, err)
	require.Equal(t, "予算委員会", d.Name)
	require.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, entity.JST), d.Date)
	require.Equal(t, "令和二年度補正予算について質疑を行った。", d.Summary)
	require.Equal(t, []string{"令和二年度一般会計補正予算（第２号）"}, d.Topics)
	require.Equal(t, []string{"山田太郎（自由民主党）", "鈴木花子（立憲民主党）"}, d.Speakers)
}

func TestParseDetailFallbackContainerAndMalformed(t *testing.T) {
	t.Parallel()

	alt := strings.Replace(detailPage, `id="detail-contents-inner"`, `id="detail-contents-inner2"`, 1)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(alt))
	require.NoError(t, err)
	_, err = ParseDetail(doc)
	require.NoError(t, err)

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<div id="detail-contents-inner"><dl><dt>会議名</dt><dd>本会議</dd></dl></div>`))
	require.NoError(t, err)
	_, err = ParseDetail(doc)
	require.ErrorIs(t, err, entity.ErrMalformedInput)
}

func TestStepWritesPage(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	src := newSource(t, env, Config{NextID: 100})
	env.Fetcher.Set(src.PageURL(101), "text/html", detailPage)
	ctx := context.Background()

	state, err := src.Start(ctx, nil)
	require.NoError(t, err)
	res, err := src.Step(ctx, state)
	require.NoError(t, err)
	require.False(t, res.Done)
	require.Equal(t, crawler.State{Cursor: 101, Emitted: 1}, res.Next)

	m, err := entity.BuildMinutes("参議院予算委員会", time.Date(2020, 6, 1, 0, 0, 0, 0, entity.JST))
	require.NoError(t, err)
	node, err := env.Store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "令和二年度補正予算について質疑を行った。", node.Props["summary"])
	require.Len(t, node.Refs, 1)
	require.Equal(t, src.PageURL(101), node.Refs[0].URL)
	require.Equal(t, string(entity.URLTitleShingiTyukei), node.Refs[0].Title)

	require.True(t, env.Store.HasEdge(m.ID, committeeID))
	require.True(t, env.Store.HasEdge(memberID, m.ID))

	a, err := entity.BuildActivity(memberID, m.ID, m.StartDateTime)
	require.NoError(t, err)
	activity, err := env.Store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, activity.Refs, 1)
	require.Equal(t, "https://webtv.test/webtv/detail.php?sid=101#00:12:30", activity.Refs[0].URL)
	require.Equal(t, 1, env.Store.CountKind(entity.KindActivity))
}

func TestProbingStopsAtFailureLimit(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	src := newSource(t, env, Config{NextID: 100, FailureLimit: 3})
	env.Fetcher.Set(src.PageURL(101), "text/html", detailPage)
	env.Fetcher.Set(src.PageURL(103), "text/html", "<html><body>準備中</body></html>")

	checkpoints := storage.NewCheckpointStore()
	runner := crawler.NewRunner(checkpoints, nil)
	state, err := runner.Run(context.Background(), src)
	require.ErrorIs(t, err, crawler.ErrRetryLimitExceeded)
	require.Equal(t, crawler.State{Cursor: 104, FailureInRow: 3, Emitted: 1}, state)
	require.Equal(t, []string{src.PageURL(101), src.PageURL(102), src.PageURL(103), src.PageURL(104)}, env.Fetcher.Requests())

	saved, ok, err := checkpoints.Load(context.Background(), Name)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state, saved)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	src := newSource(t, env, Config{NextID: 100, FailureLimit: 2})
	env.Fetcher.Set(src.PageURL(102), "text/html", detailPage)

	res, err := src.Step(context.Background(), crawler.State{Cursor: 100})
	require.NoError(t, err)
	require.Equal(t, 1, res.Next.FailureInRow)

	res, err = src.Step(context.Background(), res.Next)
	require.NoError(t, err)
	require.Zero(t, res.Next.FailureInRow)
	require.Equal(t, 102, res.Next.Cursor)
}

func TestStartPrecedence(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	ctx := context.Background()
	m, err := entity.BuildMinutes("参議院本会議", time.Date(2020, 6, 5, 0, 0, 0, 0, entity.JST))
	require.NoError(t, err)
	u, err := entity.BuildURL("https://www.webtv.sangiin.go.jp/webtv/detail.php?sid=5620", entity.URLTitleShingiTyukei, domain)
	require.NoError(t, err)
	u.LinkTo = m.ID
	_, err = env.Linker.Merge(ctx, m, u)
	require.NoError(t, err)
	_, err = env.Linker.LinkURLs(ctx, []entity.URL{u})
	require.NoError(t, err)

	explicit := newSource(t, env, Config{NextID: 7})
	state, err := explicit.Start(ctx, &crawler.State{Cursor: 900})
	require.NoError(t, err)
	require.Equal(t, 7, state.Cursor)

	auto := newSource(t, env, Config{NextID: -1, FailureLimit: 10})
	state, err = auto.Start(ctx, &crawler.State{Cursor: 904, FailureInRow: 4, Emitted: 12})
	require.NoError(t, err)
	require.Equal(t, crawler.State{Cursor: 900, Emitted: 12}, state)

	state, err = auto.Start(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 5610, state.Cursor)
}

func TestBootstrapFailureIsFatal(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	src := newSource(t, env, Config{NextID: -1})
	_, err := src.Start(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrBootstrap)

	failing, err := New(Config{NextID: -1}, env.Deps, brokenGraph{})
	require.NoError(t, err)
	_, err = failing.Start(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrBootstrap)
}

type brokenGraph struct{}

func (brokenGraph) LatestMinutesURLs(context.Context, string) ([]graph.Reference, error) {
	return nil, errors.New("neo4j unavailable")
}
