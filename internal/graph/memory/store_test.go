package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
)

func mustMinutes(t *testing.T, name string, day time.Time) entity.Minutes {
	t.Helper()
	m, err := entity.BuildMinutes(name, day)
	require.NoError(t, err)
	return m
}

func TestBulkMergeIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	m := mustMinutes(t, "参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))

	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m}))
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m}))

	nodes, _ := store.Counts()
	require.Equal(t, 1, nodes)
}

func TestBulkMergeKeepsExistingProperties(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	m := mustMinutes(t, "参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	summary := "概要"
	m.Summary = &summary
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m}))

	m.Summary = nil
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m}))

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "概要", got.Props["summary"])
}

func TestBulkMergeRejectsMissingID(t *testing.T) {
	t.Parallel()

	store := NewStore()
	err := store.BulkMerge(context.Background(), []entity.Entity{entity.Minutes{Name: "x"}})
	require.Error(t, err)
	nodes, _ := store.Counts()
	require.Zero(t, nodes)
}

func TestBulkLinkIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	m := mustMinutes(t, "参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	u, err := entity.BuildURL("https://kokkai.ndl.go.jp/txt/1", entity.URLTitleHonbun, "ndl.go.jp")
	require.NoError(t, err)
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m, u}))

	require.NoError(t, store.BulkLink(ctx, []string{u.ID}, []string{m.ID}))
	require.NoError(t, store.BulkLink(ctx, []string{u.ID}, []string{m.ID}))

	_, edges := store.Counts()
	require.Equal(t, 1, edges)

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, []graph.Reference{{ID: u.ID, URL: u.URL, Title: "本文"}}, got.Refs)
}

func TestBulkLinkMissingEndpointIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	m := mustMinutes(t, "参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	committee := entity.Canonical{ID: uuid.Derive("Committee", "本会議"), Kind: entity.KindCommittee, Name: "本会議"}
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m, committee}))

	absent := uuid.Derive("Bill", "存在しない法律案")
	err := store.BulkLink(ctx,
		[]string{m.ID, m.ID},
		[]string{committee.ID, absent},
	)
	require.ErrorIs(t, err, graph.ErrMissingEndpoint)

	var missing *graph.MissingEndpointError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{absent}, missing.IDs)

	_, edges := store.Counts()
	require.Zero(t, edges)
}

func TestBulkLinkValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.Error(t, store.BulkLink(ctx, []string{"Url:1"}, nil))

	bill := uuid.Derive("Bill", "a")
	member := uuid.Derive("Member", "b")
	err := store.BulkLink(ctx, []string{bill}, []string{member})
	require.ErrorIs(t, err, graph.ErrUnsupportedLink)
}

func TestLatestMinutesURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	older := mustMinutes(t, "参議院本会議", time.Date(2023, 4, 28, 0, 0, 0, 0, entity.JST))
	newer := mustMinutes(t, "参議院予算委員会", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	other := mustMinutes(t, "衆議院本会議", time.Date(2023, 5, 2, 0, 0, 0, 0, entity.JST))
	tv, err := entity.BuildURL("https://www.webtv.sangiin.go.jp/webtv/detail.php?sid=7000", entity.URLTitleShingiTyukei, "webtv.sangiin.go.jp")
	require.NoError(t, err)
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{older, newer, other, tv}))
	require.NoError(t, store.BulkLink(ctx, []string{tv.ID}, []string{newer.ID}))

	refs, err := store.LatestMinutesURLs(ctx, "参議院")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, tv.URL, refs[0].URL)

	refs, err = store.LatestMinutesURLs(ctx, "両院協議会")
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestSeedAndListCanonical(t *testing.T) {
	t.Parallel()

	store := NewStore()
	member := entity.Canonical{
		ID:      uuid.Derive("Member", "山田太郎"),
		Kind:    entity.KindMember,
		Name:    "山田太郎",
		Aliases: []string{"山田"},
	}
	require.NoError(t, store.Seed(member))

	got, err := store.ListCanonical(context.Background(), entity.KindMember)
	require.NoError(t, err)
	require.Equal(t, []entity.Canonical{member}, got)

	none, err := store.ListCanonical(context.Background(), entity.KindBill)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestDeleteRemovesEdges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	m := mustMinutes(t, "参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	u, err := entity.BuildURL("https://kokkai.ndl.go.jp/txt/1", entity.URLTitleHonbun, "ndl.go.jp")
	require.NoError(t, err)
	require.NoError(t, store.BulkMerge(ctx, []entity.Entity{m, u}))
	require.NoError(t, store.BulkLink(ctx, []string{u.ID}, []string{m.ID}))

	require.NoError(t, store.Delete(ctx, u.ID))
	_, err = store.Get(ctx, u.ID)
	require.ErrorIs(t, err, graph.ErrNotFound)
	require.False(t, store.HasEdge(u.ID, m.ID))
}
