package bundle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninhq/munin/pkg/embed"
	"github.com/muninhq/munin/pkg/embed/embedtest"
	"github.com/muninhq/munin/pkg/graph"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/search"
	"github.com/muninhq/munin/pkg/storage"
)

type fixture struct {
	bundler  *Bundler
	store    *knowledge.Store
	graph    *graph.Graph
	embedder *embedtest.Embedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })

	embedder := embedtest.New()
	store, err := knowledge.NewStore(engine, embedder)
	require.NoError(t, err)

	g := graph.New(store)
	return &fixture{
		bundler:  New(store, search.New(store, embedder), g),
		store:    store,
		graph:    g,
		embedder: embedder,
	}
}

func TestBundleScenarioDatabasePerformance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decisionID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta:     knowledge.Meta{Title: "Use PostgreSQL", Tags: []string{"database"}},
		Decision: "PostgreSQL is our primary database",
	})
	require.NoError(t, err)

	incidentID, err := f.store.Create(ctx, &knowledge.Incident{
		Meta:      knowledge.Meta{Title: "Connection Pool Exhaustion", Tags: []string{"database", "performance"}},
		RootCause: "Unbounded database connection pool under performance load",
	})
	require.NoError(t, err)

	require.NoError(t, f.graph.CreateRelationship(incidentID, decisionID, graph.RelCausedBy))

	bundle, err := f.bundler.BundleContext(ctx, "database performance issues", 4000, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, bundle.TotalItems, 2)
	require.NotEmpty(t, bundle.KeyDecisions)
	assert.Equal(t, decisionID, bundle.KeyDecisions[0].ID)
	require.NotEmpty(t, bundle.KnownIssues)
	assert.Equal(t, incidentID, bundle.KnownIssues[0].ID)
}

func TestBundleZeroBudget(t *testing.T) {
	f := newFixture(t)

	bundle, err := f.bundler.BundleContext(context.Background(), "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, bundle.TotalItems)
	assert.Empty(t, bundle.KeyDecisions)
	assert.Empty(t, bundle.KnownIssues)
	assert.Empty(t, bundle.RecentChanges)

	// The short-circuit happens before any embedding call
	assert.Equal(t, 0, f.embedder.Calls)
}

func TestBundleNonexistentDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{Title: "Use PostgreSQL", Tags: []string{"database"}},
	})
	require.NoError(t, err)

	bundle, err := f.bundler.BundleContext(ctx, "anything", 4000, []string{"nonexistent-tag"})
	require.NoError(t, err)
	assert.Equal(t, 0, bundle.TotalItems)
}

func TestBundleGraphExpansionPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The snapshot shares no vocabulary with the query; only the graph
	// edge pulls it in.
	hitID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta:     knowledge.Meta{Title: "Use PostgreSQL", Tags: []string{"database"}},
		Decision: "PostgreSQL everywhere",
	})
	require.NoError(t, err)
	neighborID, err := f.store.Create(ctx, &knowledge.Snapshot{
		Meta:          knowledge.Meta{Title: "Tune pool sizing", Tags: []string{"database"}},
		CommitMessage: "Lower idle limits",
	})
	require.NoError(t, err)
	require.NoError(t, f.graph.CreateRelationship(hitID, neighborID, graph.RelRelatedTo))

	bundle, err := f.bundler.BundleContext(ctx, "PostgreSQL", 4000, nil)
	require.NoError(t, err)

	var neighbor *Item
	for i := range bundle.RecentChanges {
		if bundle.RecentChanges[i].ID == neighborID {
			neighbor = &bundle.RecentChanges[i]
		}
	}
	require.NotNil(t, neighbor, "graph-derived neighbor should be bundled")
	assert.Equal(t, 0.5, neighbor.Similarity)
}

func TestBundleDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two items that both match the query and reference each other: graph
	// expansion rediscovers each, dedup keeps one copy each.
	a, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{Title: "PostgreSQL pooling decision"},
	})
	require.NoError(t, err)
	b, err := f.store.Create(ctx, &knowledge.Incident{
		Meta: knowledge.Meta{Title: "PostgreSQL pooling incident"},
	})
	require.NoError(t, err)
	require.NoError(t, f.graph.CreateRelationship(a, b, graph.RelRelatedTo))

	bundle, err := f.bundler.BundleContext(ctx, "PostgreSQL pooling", 4000, nil)
	require.NoError(t, err)
	assert.Len(t, bundle.KeyDecisions, 1)
	assert.Len(t, bundle.KnownIssues, 1)
	assert.Equal(t, 2, bundle.TotalItems)
}

func TestBundleEmbedderDownAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, &knowledge.Decision{Meta: knowledge.Meta{Title: "x"}})
	require.NoError(t, err)

	f.embedder.Err = embed.ErrUnavailable
	_, err = f.bundler.BundleContext(ctx, "query", 4000, nil)
	assert.ErrorIs(t, err, embed.ErrUnavailable)
}

func TestBundleBudgetSkipsOversizedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Budget: 100 tokens * 4 = 400 chars; decision bucket gets 160.
	bigID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta:     knowledge.Meta{Title: "Giant PostgreSQL design", Tags: []string{"critical"}},
		Decision: strings.Repeat("very long decision text ", 50),
	})
	require.NoError(t, err)
	smallID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta:     knowledge.Meta{Title: "Small PostgreSQL note"},
		Decision: "short",
	})
	require.NoError(t, err)

	bundle, err := f.bundler.BundleContext(ctx, "PostgreSQL", 100, nil)
	require.NoError(t, err)

	ids := []string{}
	for _, item := range bundle.KeyDecisions {
		ids = append(ids, item.ID)
	}
	// The higher-ranked big item overflows the sub-budget and is skipped,
	// not retried; the smaller one still fits.
	assert.NotContains(t, ids, bigID)
	assert.Contains(t, ids, smallID)
}

func TestBundleBucketsDrawIndependentBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Total budget 250 tokens = 1000 chars. Each bucket draws its share of
	// the full 1000 independently: decisions 400, incidents 300, meetings
	// 200, snapshots 200. Each item below just fits its own bucket, so all
	// four are delivered even though their combined content exceeds the
	// nominal 1000-char total.
	long := strings.Repeat("shared vocabulary text ", 20)
	_, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{Title: "d"}, Decision: long[:387],
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, &knowledge.Incident{
		Meta: knowledge.Meta{Title: "i"}, RootCause: long[:287],
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, &knowledge.MeetingRecord{
		Meta: knowledge.Meta{Title: "m"}, Decisions: []string{long[:187]},
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, &knowledge.Snapshot{
		Meta: knowledge.Meta{Title: "s"}, CommitMessage: long[:187],
	})
	require.NoError(t, err)

	bundle, err := f.bundler.BundleContext(ctx, "shared vocabulary text", 250, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, bundle.TotalItems,
		"buckets budget independently against the same total")

	delivered := 0
	for _, items := range [][]Item{bundle.KeyDecisions, bundle.KnownIssues, bundle.RecentChanges} {
		for _, item := range items {
			delivered += len(item.Content)
		}
	}
	assert.Greater(t, delivered, 1000, "delivered content can exceed the nominal total budget")
}

func TestBundleBumpsAccessCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{Title: "PostgreSQL decision"},
	})
	require.NoError(t, err)

	_, err = f.bundler.BundleContext(ctx, "PostgreSQL decision", 4000, nil)
	require.NoError(t, err)

	item, err := f.store.Get(id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, item.Common().AccessCount30d)
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1.0},
		{29 * day, 1.0},
		{31 * day, 0.8},
		{91 * day, 0.6},
		{181 * day, 0.4},
		{366 * day, 0.2},
	}
	for _, tc := range cases {
		got := recencyScore(now.Add(-tc.age), now)
		assert.Equal(t, tc.want, got, "age %v", tc.age)
	}

	assert.Equal(t, 0.5, recencyScore(time.Time{}, now), "missing date")
}

func TestImportanceScore(t *testing.T) {
	assert.Equal(t, 0.9, importanceScore(&knowledge.Decision{}))
	assert.Equal(t, 0.8, importanceScore(&knowledge.Incident{}))
	assert.Equal(t, 0.6, importanceScore(&knowledge.MeetingRecord{}))
	assert.Equal(t, 0.5, importanceScore(&knowledge.Snapshot{}))

	boosted := &knowledge.Incident{Meta: knowledge.Meta{Tags: []string{"critical"}}}
	assert.InDelta(t, 0.9, importanceScore(boosted), 1e-9)

	// The boost caps at 1.0 and applies once even with both tags
	capped := &knowledge.Decision{Meta: knowledge.Meta{Tags: []string{"critical", "high-priority"}}}
	assert.Equal(t, 1.0, importanceScore(capped))
}

func TestCompositeRankingPrefersRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	f.bundler.now = func() time.Time { return now }

	oldID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{
			Title: "PostgreSQL pooling approach",
			Date:  now.Add(-400 * 24 * time.Hour),
		},
	})
	require.NoError(t, err)
	newID, err := f.store.Create(ctx, &knowledge.Decision{
		Meta: knowledge.Meta{
			Title: "PostgreSQL pooling approach",
			Date:  now.Add(-1 * 24 * time.Hour),
		},
	})
	require.NoError(t, err)

	bundle, err := f.bundler.BundleContext(ctx, "PostgreSQL pooling approach", 4000, nil)
	require.NoError(t, err)
	require.Len(t, bundle.KeyDecisions, 2)

	// Same relevance and importance; recency decides.
	assert.Equal(t, newID, bundle.KeyDecisions[0].ID)
	assert.Equal(t, oldID, bundle.KeyDecisions[1].ID)
	assert.Greater(t, bundle.KeyDecisions[0].Score, bundle.KeyDecisions[1].Score)
}
