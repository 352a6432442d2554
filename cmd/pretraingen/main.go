package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/pretraingen/ptg"
	"github.com/ZanzyTHEbar/pretraingen/ptg/cache"
	"github.com/ZanzyTHEbar/pretraingen/ptg/config"
	"github.com/ZanzyTHEbar/pretraingen/ptg/corpus"
	"github.com/ZanzyTHEbar/pretraingen/ptg/dataset"
	"github.com/ZanzyTHEbar/pretraingen/ptg/encode"
	"github.com/ZanzyTHEbar/pretraingen/ptg/tokenizer"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   internal.DefaultAppName,
		Short: "Pretraingen - masked-pretraining example pipeline",
		Long: `Pretraingen turns a raw text corpus into fixed-length numeric
training examples for MLM and NSP pretraining, and pre-serializes whole
epochs of them for lightweight replay.

Run 'pretraingen generate' to build an epoch cache.
Run 'pretraingen --help' for available commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")

	rootCmd.AddCommand(
		generateCmd(),
		blocksCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger := internal.GetLogger()
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Pre-compute and serialize epochs of masked training examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tok, err := tokenizer.New(tokenizer.Config{
				Backend:   cfg.Tokenizer.Backend,
				VocabPath: cfg.Tokenizer.VocabPath,
			})
			if err != nil {
				return err
			}

			factory, err := datasetFactory(cfg, tok)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(cfg.Cache.OutputPath), 0o755); err != nil {
				return err
			}
			gen := cache.NewGenerator(factory, cfg.Cache.OutputPath,
				cache.WithEpochs(cfg.Cache.Epochs),
				cache.WithCompression(cfg.Cache.Compress),
				cache.WithWorkers(cfg.Cache.Workers),
			)
			manifest, err := gen.Generate(context.Background(), cfg.Cache.Seed)
			if err != nil {
				return err
			}
			slog.Info("epoch cache generated",
				"run", manifest.RunID,
				"epochs", manifest.Epochs,
				"output", cfg.Cache.OutputPath)
			return nil
		},
	}
	return cmd
}

// datasetFactory wires a per-worker dataset: each worker holds its own
// store handle and cursors.
func datasetFactory(cfg *config.Config, tok tokenizer.Tokenizer) (cache.DatasetFactory, error) {
	enc, err := encode.NewEncoder(tok, cfg.Encode.MaxPos,
		encode.WithMaskProb(cfg.Encode.MaskProb),
		encode.WithShortSeqProb(cfg.Encode.ShortSeqProb),
		encode.WithMaxWordsLength(cfg.Encode.MaxWordsLength),
	)
	if err != nil {
		return nil, err
	}

	switch cfg.Corpus.Task {
	case "mlm":
		return func(ctx context.Context) (cache.Dataset, error) {
			rng := rand.New(rand.NewSource(cfg.Cache.Seed))
			if cfg.Corpus.BlocksPath != "" {
				store, err := corpus.NewBlockStoreFromBlocks(cfg.Corpus.BlocksPath, rng)
				if err != nil {
					return nil, err
				}
				return dataset.NewBlockDataset(store, enc), nil
			}
			store, err := corpus.NewBlockStoreFromFile(tok, cfg.Corpus.Path, cfg.Encode.MaxPos, rng,
				corpus.WithSentenceStack(cfg.Corpus.SentenceStack))
			if err != nil {
				return nil, err
			}
			return dataset.NewBlockDataset(store, enc), nil
		}, nil
	case "", "nsp":
		return func(ctx context.Context) (cache.Dataset, error) {
			if cfg.Corpus.OnMemory {
				store, err := corpus.NewPairStoreFromFile(tok, cfg.Corpus.Path)
				if err != nil {
					return nil, err
				}
				return dataset.NewPairDataset(store, enc), nil
			}
			store, err := corpus.NewLazyPairStore(tok, cfg.Corpus.Path, nil)
			if err != nil {
				return nil, err
			}
			return dataset.NewPairDataset(store, enc), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown corpus task %q", cfg.Corpus.Task)
	}
}

func blocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Tokenize the corpus into serialized token blocks",
		Long: `Tokenize the corpus once into flat token-id blocks and write
them to corpus.blocksPath so later runs skip tokenization. A ".gz"
suffix on the output selects transparent compression.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Corpus.BlocksPath == "" {
				return fmt.Errorf("corpus.blocksPath is required")
			}
			tok, err := tokenizer.New(tokenizer.Config{
				Backend:   cfg.Tokenizer.Backend,
				VocabPath: cfg.Tokenizer.VocabPath,
			})
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Cache.Seed))
			store, err := corpus.NewBlockStoreFromFile(tok, cfg.Corpus.Path, cfg.Encode.MaxPos, rng,
				corpus.WithSentenceStack(cfg.Corpus.SentenceStack))
			if err != nil {
				return err
			}
			if err := store.SaveBlocks(cfg.Corpus.BlocksPath); err != nil {
				return err
			}
			slog.Info("blocks written", "path", cfg.Corpus.BlocksPath, "blocks", store.Len())
			return nil
		},
	}
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", internal.DefaultAppName, version)
			fmt.Printf("  commit: %s\n", commit)
		},
	}
}
