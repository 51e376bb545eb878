package search

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// indexFixture builds a snapshot over the given path->content map.
func indexFixture(t *testing.T, docs map[string]string) *index.Snapshot {
	t.Helper()
	vault := t.TempDir()
	for name, content := range docs {
		path := filepath.Join(vault, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.New()
	cfg.VaultPath = vault
	st, err := index.NewStore(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)

	b := index.NewBuilder(st, cfg, provider.NewStaticProvider(), testLogger())
	_, err = b.Build(context.Background())
	require.NoError(t, err)

	snap, err := st.Load()
	require.NoError(t, err)
	t.Cleanup(snap.Close)
	return snap
}

func authFixture(t *testing.T) *index.Snapshot {
	t.Helper()
	return indexFixture(t, map[string]string{
		"auth/oauth-setup.md": "# OAuth Setup\n\nRegister the oauth client, store the client secret, " +
			"and schedule secret rotation every ninety days.\n",
		"auth/session-notes.md": "# Session Notes\n\nSessions use signed cookies. " +
			"Login expiry is thirty minutes of inactivity.\n",
		"kitchen/groceries.md": "# Groceries\n\nApples, oat milk, coffee beans, rye bread.\n",
	})
}

func TestSearchRanksRelevantDocumentFirst(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret rotation"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "auth/oauth-setup.md", hits[0].Path)
	assert.Equal(t, "OAuth Setup", hits[0].Title)
	assert.Equal(t, 1, hits[0].Rank)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.NotEmpty(t, hits[0].Preview)
}

func TestSearchRanksTopicalDocsAboveUnrelated(t *testing.T) {
	snap := indexFixture(t, map[string]string{
		"a.md": "# PKCE\n\nOAuth PKCE flow for public clients.\n",
		"b.md": "# Shopping\n\nGrocery list: eggs, flour, butter.\n",
		"c.md": "# Tokens\n\nOAuth refresh tokens and rotation.\n",
	})
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "oauth flow tokens"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(hits), 2)

	assert.ElementsMatch(t, []string{"a.md", "c.md"}, []string{hits[0].Path, hits[1].Path})
	for _, h := range hits[2:] {
		assert.Less(t, h.Score, hits[1].Score)
	}

	one, err := e.Search(context.Background(), snap, Query{Text: "oauth flow tokens", TopN: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSearchDeterministic(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	first, err := e.Search(context.Background(), snap, Query{Text: "login session expiry"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Search(context.Background(), snap, Query{Text: "login session expiry"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchTopNTruncates(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "notes", TopN: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 1)
}

func TestSearchMinScoreFilters(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	all, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret rotation"})
	require.NoError(t, err)
	filtered, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret rotation", MinScore: 0.95})
	require.NoError(t, err)

	assert.Less(t, len(filtered), len(all))
	for _, h := range filtered {
		assert.GreaterOrEqual(t, h.Score, 0.95)
	}
}

func TestSearchFastSkipsRerank(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(rerankFailer{provider.NewStaticProvider()}, testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret", Fast: true})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSearchEmptyQuery(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(provider.NewStaticProvider(), testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// rerankFailer embeds fine but always fails reranking.
type rerankFailer struct {
	provider.Provider
}

func (rerankFailer) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	return nil, errors.New(errors.KindProvider, "reranker offline")
}

func TestSearchFailsWhenRerankFails(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(rerankFailer{provider.NewStaticProvider()}, testLogger())

	_, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret rotation"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProvider))

	// Fast mode never touches the reranker, so it still answers.
	hits, err := e.Search(context.Background(), snap, Query{Text: "oauth client secret rotation", Fast: true})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

// negativeReranker returns cross-encoder style logits: all negative,
// favoring texts that mention zulu.
type negativeReranker struct {
	provider.Provider
}

func (negativeReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = -10
		if strings.Contains(text, "zulu") {
			scores[i] = -1
		}
	}
	return scores, nil
}

func TestSearchRerankHandlesNegativeScores(t *testing.T) {
	snap := indexFixture(t, map[string]string{
		"alpha.md": "# Alpha\n\nrelease checklist for the deploy train\n",
		"zeta.md":  "# Zeta\n\nrelease checklist zulu for the deploy train\n",
	})
	e := NewEngine(negativeReranker{provider.NewStaticProvider()}, testLogger())

	hits, err := e.Search(context.Background(), snap, Query{Text: "release checklist"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(hits), 2)

	// The reranker's preference must survive normalization even though
	// every raw score is negative.
	assert.Equal(t, "zeta.md", hits[0].Path)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Less(t, hits[1].Score, hits[0].Score)
}

func TestSearchMissingChunkReportsCorrupt(t *testing.T) {
	vault := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vault, "a.md"),
		[]byte("# A\n\noauth token notes\n"), 0o644))

	cfg := config.New()
	cfg.VaultPath = vault
	st, err := index.NewStore(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	b := index.NewBuilder(st, cfg, provider.NewStaticProvider(), testLogger())
	_, err = b.Build(context.Background())
	require.NoError(t, err)

	// Empty the chunk store so the lexical and vector indexes point at
	// chunks that no longer exist.
	dir, err := st.CurrentDir()
	require.NoError(t, err)
	db, err := sql.Open("sqlite", filepath.Join(dir, "chunks.db"))
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM chunks`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	snap, err := st.Load()
	require.NoError(t, err)
	defer snap.Close()

	e := NewEngine(provider.NewStaticProvider(), testLogger())
	_, err = e.Search(context.Background(), snap, Query{Text: "oauth token"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

// embedFailer fails every embedding call.
type embedFailer struct {
	provider.Provider
}

func (embedFailer) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New(errors.KindProvider, "embedder offline")
}

func TestSearchFailsWhenQueryEmbedFails(t *testing.T) {
	snap := authFixture(t)
	e := NewEngine(embedFailer{provider.NewStaticProvider()}, testLogger())

	_, err := e.Search(context.Background(), snap, Query{Text: "oauth"})
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}

func TestAssignRanksDense(t *testing.T) {
	hits := []Hit{
		{Path: "a.md", Score: 1.0},
		{Path: "b.md", Score: 0.8},
		{Path: "c.md", Score: 0.8},
		{Path: "d.md", Score: 0.5},
	}
	assignRanks(hits)

	assert.Equal(t, []int{1, 2, 2, 3}, []int{hits[0].Rank, hits[1].Rank, hits[2].Rank, hits[3].Rank})
}

func TestMakePreview(t *testing.T) {
	assert.Equal(t, "a b c", makePreview("a\n\n b\t c"))

	long := ""
	for i := 0; i < 50; i++ {
		long += "abcdefghij "
	}
	preview := makePreview(long)
	assert.LessOrEqual(t, len([]rune(preview)), PreviewLength+3)
	assert.Contains(t, preview, "...")
}
