// Package munin is the embedded knowledge database facade. It wires storage,
// embeddings, search, the relationship graph, bundling and decay into one
// handle.
//
// Usage:
//
//	db, err := munin.Open(cfg)
//	if err != nil { ... }
//	defer db.Close()
//
//	bundle, err := db.BundleContext(ctx, "database performance issues", 4000, nil)
package munin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/muninhq/munin/pkg/bundle"
	"github.com/muninhq/munin/pkg/config"
	"github.com/muninhq/munin/pkg/decay"
	"github.com/muninhq/munin/pkg/embed"
	"github.com/muninhq/munin/pkg/encryption"
	"github.com/muninhq/munin/pkg/graph"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/search"
	"github.com/muninhq/munin/pkg/storage"
)

// DB is a handle to the knowledge database.
type DB struct {
	cfg      *config.Config
	engine   storage.Engine
	embedder embed.Embedder

	store     *knowledge.Store
	search    *search.Service
	graph     *graph.Graph
	bundler   *bundle.Bundler
	decay     *decay.Manager
	scheduler *decay.Scheduler
}

// Options customizes Open beyond the configuration file.
type Options struct {
	// Engine overrides the storage engine. Nil opens BadgerDB at
	// cfg.DataDir.
	Engine storage.Engine

	// Embedder overrides the embedding provider. Nil builds one from
	// cfg.Embedding. The embedder is a shared singleton across all
	// components of the DB.
	Embedder embed.Embedder
}

// Open opens the database described by cfg. A nil cfg uses defaults.
func Open(cfg *config.Config) (*DB, error) {
	return OpenWithOptions(cfg, Options{})
}

// OpenWithOptions opens the database with injected components. Used by tests
// and embedders that bring their own engine.
func OpenWithOptions(cfg *config.Config, opts Options) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	engine := opts.Engine
	if engine == nil {
		badgerOpts := storage.BadgerOptions{DataDir: cfg.DataDir}
		if cfg.EncryptionPassphrase != "" {
			key, err := encryption.DeriveKey(cfg.EncryptionPassphrase, cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("deriving encryption key: %w", err)
			}
			badgerOpts.EncryptionKey = key
			log.Println("🔐 Encryption at rest enabled")
		}

		var err error
		engine, err = storage.NewBadgerEngineWithOptions(badgerOpts)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = newEmbedder(&cfg.Embedding)
		if err != nil {
			engine.Close()
			return nil, err
		}
	}

	store, err := knowledge.NewStore(engine, embedder)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("opening item store: %w", err)
	}

	db := &DB{
		cfg:      cfg,
		engine:   engine,
		embedder: embedder,
		store:    store,
		search:   search.New(store, embedder),
		graph:    graph.New(store),
		decay:    decay.NewManager(store),
	}
	db.bundler = bundle.New(store, db.search, db.graph)

	// Readiness is advisory at open time: a cold provider surfaces as
	// ErrUnavailable on first use, which callers can retry.
	readyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := embedder.Ready(readyCtx); err != nil {
		log.Printf("⚠️  Embedding provider not ready: %v", err)
	}

	if cfg.Decay.Enabled {
		scheduler, err := decay.NewScheduler(db.decay, cfg.Decay.Schedule)
		if err != nil {
			engine.Close()
			return nil, err
		}
		scheduler.Start()
		db.scheduler = scheduler
	}

	return db, nil
}

// newEmbedder builds the provider selected by the configuration.
func newEmbedder(cfg *config.EmbeddingConfig) (embed.Embedder, error) {
	ec := &embed.Config{
		Provider:   cfg.Provider,
		APIURL:     cfg.APIURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	}

	switch cfg.Provider {
	case "", "ollama":
		return embed.NewOllama(ec), nil
	case "openai":
		return embed.NewOpenAI(ec), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Close stops the decay scheduler and closes storage.
func (db *DB) Close() error {
	if db.scheduler != nil {
		db.scheduler.Stop()
	}
	return db.engine.Close()
}

// Embed generates an embedding for arbitrary text.
func (db *DB) Embed(ctx context.Context, text string) ([]float32, error) {
	return db.embedder.Embed(ctx, text)
}

// Ready reports whether the embedding provider is reachable.
func (db *DB) Ready(ctx context.Context) error {
	return db.embedder.Ready(ctx)
}

// CreateItem validates, embeds and stores a new item, then auto-links it
// from its own text. Returns the assigned ID.
func (db *DB) CreateItem(ctx context.Context, item knowledge.Item) (string, error) {
	id, err := db.store.Create(ctx, item)
	if err != nil {
		return "", err
	}

	linked, err := db.graph.AutoLink(id, knowledge.Content(item))
	if err != nil {
		return id, fmt.Errorf("auto-linking %s: %w", id, err)
	}
	if linked > 0 {
		log.Printf("🔗 %s auto-linked to %d item(s)", id, linked)
	}

	return id, nil
}

// GetItem fetches an item by ID. Archived items remain fetchable.
func (db *DB) GetItem(id string) (knowledge.Item, error) {
	return db.store.Get(id)
}

// ListItems returns items of one type, optionally filtered by status.
func (db *DB) ListItems(t knowledge.ItemType, statusFilter string) ([]knowledge.Item, error) {
	return db.store.List(t, statusFilter)
}

// UpdateItemStatus transitions an item's lifecycle status.
func (db *DB) UpdateItemStatus(id, status string) error {
	return db.store.UpdateStatus(id, status)
}

// SemanticSearch returns the topK items most similar to the query.
func (db *DB) SemanticSearch(ctx context.Context, query string, topK int, types []knowledge.ItemType) ([]search.ScoredItem, error) {
	return db.search.SemanticSearch(ctx, query, topK, types)
}

// FilteredSearch post-filters a semantic search by tags and date range.
func (db *DB) FilteredSearch(ctx context.Context, query string, filters search.Filters) ([]search.ScoredItem, error) {
	return db.search.FilteredSearch(ctx, query, filters)
}

// AutoLink scans text for item ID references and creates edges from itemID.
func (db *DB) AutoLink(itemID, text string) (int, error) {
	return db.graph.AutoLink(itemID, text)
}

// FindRelated walks the relationship graph from itemID up to depth hops.
func (db *DB) FindRelated(itemID string, depth int) ([]graph.Related, error) {
	return db.graph.FindRelated(itemID, depth)
}

// CreateRelationship inserts a direct typed edge.
func (db *DB) CreateRelationship(fromID, toID, relType string) error {
	return db.graph.CreateRelationship(fromID, toID, relType)
}

// ExportGraph returns the node/edge set for visualization.
func (db *DB) ExportGraph(includeArchived bool, maxNodes int) (*graph.ExportResult, error) {
	return db.graph.Export(includeArchived, maxNodes)
}

// BundleContext answers a query with a token-budgeted, ranked bundle. A
// non-positive maxTokens yields an empty bundle; callers wanting the
// configured default pass DefaultMaxTokens().
func (db *DB) BundleContext(ctx context.Context, query string, maxTokens int, domains []string) (*bundle.Bundle, error) {
	return db.bundler.BundleContext(ctx, query, maxTokens, domains)
}

// DefaultMaxTokens is the configured default bundle budget.
func (db *DB) DefaultMaxTokens() int {
	return db.cfg.Bundle.MaxTokens
}

// RunDecayPass runs one decay/archival pass immediately.
func (db *DB) RunDecayPass() (*decay.PassResult, error) {
	return db.decay.RunPass()
}

// DecayStats reports per-type freshness statistics.
func (db *DB) DecayStats() ([]decay.TypeStats, error) {
	return db.decay.Stats()
}

// Stats reports item and relationship counts.
func (db *DB) Stats() (nodes int64, edges int64, err error) {
	nodes, err = db.engine.NodeCount()
	if err != nil {
		return 0, 0, err
	}
	edges, err = db.engine.EdgeCount()
	if err != nil {
		return 0, 0, err
	}
	return nodes, edges, nil
}
