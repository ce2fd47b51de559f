// Indexer CLI - batch encoding of pre-tokenized corpora
//
// Usage:
//
//	indexer index --corpus=wiki-fr         # Incremental index
//	indexer index --corpus=wiki-fr --full  # Full reindex
//	indexer index --all                    # Index all corpora
//	indexer encode --input=docs.jsonl      # Print document vectors as JSON lines
//	indexer status                         # Cache statistics per corpus
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/container"
	"github.com/iasik/hierarchical-encoder/internal/indexer"
	"github.com/iasik/hierarchical-encoder/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "indexer",
		Usage: "encode pre-tokenized corpora into document vectors",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "encode corpora and store the vectors in the vector database",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "corpus",
						Usage: "corpus id to index",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "index all configured corpora",
					},
					&cli.BoolFlag{
						Name:  "full",
						Usage: "perform full reindex (clear existing)",
					},
				},
				Action: indexAction,
			},
			{
				Name:  "encode",
				Usage: "encode a JSON lines file and print one vector per document",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "input",
						Usage: "JSON lines file of documents, - for stdin",
						Value: "-",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "output file, - for stdout",
						Value: "-",
					},
				},
				Action: encodeAction,
			},
			{
				Name:   "status",
				Usage:  "show index cache statistics",
				Flags:  []cli.Flag{envFlag()},
				Action: statusAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "environment file",
		Value: ".env",
	}
}

// loadConfig reads the env file and configuration and installs the
// configured logger as the default.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(cmd.String("env")); err != nil {
		return nil, nil, err
	}
	cfgManager, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := cfgManager.Get()
	logger := logging.New(cfg.Logging)

	logger.Info("configuration loaded",
		"config", cfgManager.Path(),
		"base_encoder_provider", cfg.BaseEncoder.Provider,
		"vectordb_provider", cfg.VectorDB.Provider)
	return cfg, logger, nil
}

func indexAction(ctx context.Context, cmd *cli.Command) error {
	corpusID := cmd.String("corpus")
	indexAll := cmd.Bool("all")
	fullIndex := cmd.Bool("full")

	if corpusID == "" && !indexAll {
		return errors.New("--corpus or --all is required")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.WaitForBase(ctx, 1); err != nil {
		logger.Info("hint: ensure the encoder service is available",
			"model", cfg.BaseEncoder.Model,
			"endpoint", cfg.BaseEncoder.Endpoint)
		return err
	}
	if err := c.ConnectVectorDB(ctx, 1); err != nil {
		return err
	}

	idx := c.Indexer()
	if err := idx.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	if indexAll {
		results, err := idx.IndexAllCorpora(ctx, fullIndex)
		if err != nil {
			return err
		}

		fmt.Println("\n=== Indexing Summary ===")
		totalDocs := 0
		totalSegments := 0
		hasErrors := false

		for _, id := range sortedKeys(results) {
			result := results[id]
			fmt.Printf("\nCorpus: %s\n", id)
			fmt.Printf("  Documents indexed: %d\n", result.DocumentsIndexed)
			fmt.Printf("  Segments encoded: %d\n", result.SegmentsEncoded)
			fmt.Printf("  Duration: %s\n", result.Duration)

			if len(result.Errors) > 0 {
				hasErrors = true
				printErrors("  ", result.Errors)
			}

			totalDocs += result.DocumentsIndexed
			totalSegments += result.SegmentsEncoded
		}

		fmt.Printf("\nTotal: %d documents, %d segments across %d corpora\n",
			totalDocs, totalSegments, len(results))

		if hasErrors {
			return errors.New("indexing finished with errors")
		}
		logger.Info("indexing completed successfully")
		return nil
	}

	corpusCfg, err := config.GetCorpus(cfg.Corpora.ConfigDir, corpusID)
	if err != nil {
		return fmt.Errorf("failed to load corpus config %s: %w", corpusID, err)
	}

	result, err := idx.IndexCorpus(ctx, corpusCfg, fullIndex)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Indexing Complete ===")
	fmt.Printf("Corpus: %s\n", result.CorpusID)
	fmt.Printf("Documents scanned: %d\n", result.DocumentsScanned)
	fmt.Printf("Documents indexed: %d\n", result.DocumentsIndexed)
	fmt.Printf("Documents skipped: %d\n", result.DocumentsSkipped)
	fmt.Printf("Documents deleted: %d\n", result.DocumentsDeleted)
	fmt.Printf("Segments encoded: %d\n", result.SegmentsEncoded)
	fmt.Printf("Duration: %s\n", result.Duration)

	if len(result.TruncatedDocuments) > 0 {
		fmt.Printf("Truncated documents: %d (see %s/reports/%s-truncated.json)\n",
			len(result.TruncatedDocuments), cfg.Cache.Dir, result.CorpusID)
	}

	if len(result.Errors) > 0 {
		printErrors("", result.Errors)
		return errors.New("indexing finished with errors")
	}

	logger.Info("indexing completed successfully")
	return nil
}

// encodedLine is one line of encode output.
type encodedLine struct {
	ID        string    `json:"id"`
	Vector    []float32 `json:"vector"`
	Segments  int       `json:"segments"`
	Truncated bool      `json:"truncated,omitempty"`
}

func encodeAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path := cmd.String("input"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	docs, err := indexer.DecodeCorpus(in)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}

	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	encoded, err := c.Documents.Encode(ctx, docs)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if path := cmd.String("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, doc := range encoded {
		if err := enc.Encode(encodedLine{
			ID:        doc.Document.ID,
			Vector:    doc.Vector,
			Segments:  doc.Segmented.Segments,
			Truncated: doc.Segmented.Truncated,
		}); err != nil {
			return err
		}
	}

	logger.Info("encoded documents", "count", len(encoded), "dimensions", c.Documents.Dimensions())
	return w.Flush()
}

func statusAction(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	corpora, err := config.LoadAllCorpora(cfg.Corpora.ConfigDir)
	if err != nil {
		return err
	}

	fmt.Printf("%-24s %10s %10s %10s\n", "CORPUS", "DOCUMENTS", "SEGMENTS", "TRUNCATED")
	for _, id := range sortedKeys(corpora) {
		cache, err := indexer.NewCache(cfg.Cache.Dir, id)
		if err != nil {
			return err
		}
		stats := cache.Stats()
		fmt.Printf("%-24s %10d %10d %10d\n", id, stats.DocumentCount, stats.SegmentCount, stats.TruncatedCount)
	}
	return nil
}

func printErrors(indent string, errs []error) {
	fmt.Printf("%sErrors: %d\n", indent, len(errs))
	for _, err := range errs {
		fmt.Printf("%s  - %v\n", indent, err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
