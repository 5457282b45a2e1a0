package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/reelchat/reelchat/db"
	"github.com/reelchat/reelchat/internal/catalog"
)

// embedBatchSize is the number of movies embedded per request.
const embedBatchSize = 16

// executeIngest reads a JSON movie list, embeds each movie's synopsis
// and upserts the documents into the index.
func executeIngest(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: reelchat ingest <movies.json>")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkRequiredEnv(); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening movie list: %w", err)
	}
	defer func() { _ = f.Close() }()

	movies, err := catalog.DecodeMovies(f)
	if err != nil {
		return fmt.Errorf("reading movie list: %w", err)
	}
	logger.Info("ingesting movies", "count", len(movies), "file", args[0])

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := catalog.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	store := catalog.New(pool, logger)

	for start := 0; start < len(movies); start += embedBatchSize {
		end := min(start+embedBatchSize, len(movies))
		batch := movies[start:end]

		docs := make([]*ai.Document, len(batch))
		for i, m := range batch {
			docs[i] = ai.DocumentFromText(m.EmbeddingText(), nil)
		}

		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("embedding batch at %d: got %d embeddings for %d movies",
				start, len(resp.Embeddings), len(batch))
		}

		for i, m := range batch {
			if err := store.Upsert(ctx, m, resp.Embeddings[i].Embedding); err != nil {
				return fmt.Errorf("indexing movie %q: %w", m.ID, err)
			}
		}
		logger.Info("indexed batch", "from", start, "to", end)
	}

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting indexed movies: %w", err)
	}
	logger.Info("ingest complete", "indexed", count)
	return nil
}
