// Package cache pre-computes and serializes epochs of masked training
// examples so the expensive sampling work is decoupled from training-step
// I/O.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/pretraingen/ptg/encode"
)

// Dataset is the example source the generator drains once per epoch.
// Implementations are not safe for concurrent use; the generator asks its
// factory for a fresh instance per worker.
type Dataset interface {
	Len() int
	Example(i int, rng *rand.Rand) (encode.Feature, error)
}

// DatasetFactory builds one Dataset instance per epoch worker.
type DatasetFactory func(ctx context.Context) (Dataset, error)

// Record is one serialized Feature together with its epoch and step
// ordinal, written sequentially to an epoch file.
type Record struct {
	Epoch   int            `cbor:"epoch"`
	Step    int            `cbor:"step"`
	Feature encode.Feature `cbor:"feature"`
}

// Manifest summarizes one generation run so replay callers can declare
// accurate lengths.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Epochs    int       `json:"epochs"`
	Records   []int     `json:"records"`
	Compress  bool      `json:"compress"`
}

// Generator writes one record stream per epoch, each epoch drawn in a
// fresh random order with its own RNG stream.
type Generator struct {
	factory    DatasetFactory
	outputPath string
	epochs     int
	compress   bool
	workers    int

	logger  *slog.Logger
	asserts *assert.AssertHandler
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithEpochs sets the number of epoch files to generate.
func WithEpochs(n int) GeneratorOption {
	return func(g *Generator) { g.epochs = n }
}

// WithCompression toggles transparent gzip compression of epoch files.
func WithCompression(on bool) GeneratorOption {
	return func(g *Generator) { g.compress = on }
}

// WithWorkers bounds the number of epochs generated concurrently.
func WithWorkers(n int) GeneratorOption {
	return func(g *Generator) { g.workers = n }
}

// WithGeneratorLogger sets a custom logger
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator builds a Generator writing files named
// <outputPath>_<epoch>.cbor (plus ".gz" when compressed).
func NewGenerator(factory DatasetFactory, outputPath string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		factory:    factory,
		outputPath: outputPath,
		epochs:     1,
		workers:    1,
		logger:     slog.Default(),
		asserts:    assert.NewAssertHandler(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EpochPath names the record file for one epoch.
func (g *Generator) EpochPath(epoch int) string {
	path := fmt.Sprintf("%s_%d.cbor", g.outputPath, epoch)
	if g.compress {
		path += ".gz"
	}
	return path
}

// ManifestPath names the run manifest file.
func (g *Generator) ManifestPath() string {
	return g.outputPath + ".manifest.json"
}

// Generate runs every epoch, one worker per epoch up to the worker bound,
// and writes the manifest last. Each worker owns its dataset instance and
// RNG stream, seeded deterministically from the run seed.
func (g *Generator) Generate(ctx context.Context, seed int64) (*Manifest, error) {
	manifest := &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Epochs:    g.epochs,
		Records:   make([]int, g.epochs),
		Compress:  g.compress,
	}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(g.workers).WithContext(ctx).WithCancelOnError()
	for epoch := 0; epoch < g.epochs; epoch++ {
		p.Go(func(ctx context.Context) error {
			n, err := g.generateEpoch(ctx, epoch, seed+int64(epoch))
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			mu.Lock()
			manifest.Records[epoch] = n
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(g.ManifestPath(), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	g.logger.Info("generation complete",
		"run", manifest.RunID,
		"epochs", g.epochs,
		"output", g.outputPath)
	return manifest, nil
}

func (g *Generator) generateEpoch(ctx context.Context, epoch int, seed int64) (int, error) {
	ds, err := g.factory(ctx)
	if err != nil {
		return 0, err
	}
	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(ds.Len())

	f, err := os.Create(g.EpochPath(epoch))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var w io.Writer = f
	var gz *gzip.Writer
	if g.compress {
		gz = gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	enc := cbor.NewEncoder(w)

	start := time.Now()
	for step, idx := range order {
		select {
		case <-ctx.Done():
			return step, ctx.Err()
		default:
		}
		feature, err := ds.Example(idx, rng)
		if err != nil {
			return step, err
		}
		g.asserts.Assert(ctx, len(feature.InputIDs) == len(feature.LabelIDs), "feature arrays must share one length")
		if err := enc.Encode(Record{Epoch: epoch, Step: step, Feature: feature}); err != nil {
			return step, fmt.Errorf("write record %d: %w", step, err)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return len(order), err
		}
	}
	if err := f.Close(); err != nil {
		return len(order), err
	}
	g.logger.Info("epoch written",
		"epoch", epoch,
		"records", len(order),
		"elapsed", time.Since(start))
	return len(order), nil
}
