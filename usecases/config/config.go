//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"time"

	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/weaviate/textindex/adapters/repos/db/compression"
)

const (
	DefaultBM25k1 = float32(1.2)
	DefaultBM25b  = float32(0.75)
)

const (
	DefaultMaxMemoryBudget   = 512 * 1024 * 1024
	DefaultMaxNumWorkers     = 8
	DefaultMaxSegments       = 64
	DefaultThrottleRate      = 1000
	DefaultMergeConcurrency  = 2
	DefaultSearchConcurrency = 0
	DefaultDocStoreBlock     = 16 * 1024
	DefaultDocStoreCache     = 100
	DefaultMergeSegmentsPer  = 8
	DefaultWatchInterval     = 500 * time.Millisecond
)

const (
	MergePolicyLog  = "log"
	MergePolicyNone = "none"
)

const (
	ReloadManual   = "manual"
	ReloadOnCommit = "on_commit"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the root configuration of an index.
type Config struct {
	Logging         Logging  `json:"logging" yaml:"logging"`
	BM25            BM25     `json:"bm25" yaml:"bm25"`
	Indexing        Indexing `json:"indexing" yaml:"indexing"`
	Merge           Merge    `json:"merge" yaml:"merge"`
	DocStore        DocStore `json:"doc_store" yaml:"doc_store"`
	Reader          Reader   `json:"reader" yaml:"reader"`
	Search          Search   `json:"search" yaml:"search"`
	VerifyChecksums bool     `json:"verify_checksums" yaml:"verify_checksums"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func (l Logging) Validate() error {
	if l.Level != "" {
		if _, err := logrus.ParseLevel(l.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}

	switch l.Format {
	case "", LogFormatText, LogFormatJSON:
		return nil
	default:
		return fmt.Errorf("logging.format must be %q or %q, got %q",
			LogFormatText, LogFormatJSON, l.Format)
	}
}

// Logger builds a logger writing to stderr.
func (l Logging) Logger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if l.Level != "" {
		lvl, err := logrus.ParseLevel(l.Level)
		if err != nil {
			return nil, errors.Wrap(err, "parse log level")
		}
		logger.SetLevel(lvl)
	}

	if l.Format == LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}

type BM25 struct {
	K1 float32 `json:"k1" yaml:"k1"`
	B  float32 `json:"b" yaml:"b"`
}

func (b BM25) Validate() error {
	if b.K1 < 0 {
		return fmt.Errorf("bm25.k1 must not be negative, got %v", b.K1)
	}
	if b.B < 0 || b.B > 1 {
		return fmt.Errorf("bm25.b must be between 0 and 1, got %v", b.B)
	}
	return nil
}

type Indexing struct {
	// MemoryBudget is the arena size in bytes all workers share. A worker
	// flushes its segment once it uses its share of the budget.
	MemoryBudget uint64 `json:"memory_budget" yaml:"memory_budget"`
	NumWorkers   int    `json:"num_workers" yaml:"num_workers"`
	// MaxSegments is the live segment count above which adds are throttled.
	MaxSegments  int     `json:"max_segments" yaml:"max_segments"`
	ThrottleRate float64 `json:"throttle_rate" yaml:"throttle_rate"`
}

func (i Indexing) Validate() error {
	if i.NumWorkers <= 0 {
		return fmt.Errorf("indexing.num_workers must be positive, got %d", i.NumWorkers)
	}
	if i.MemoryBudget < uint64(i.NumWorkers)*1024*1024 {
		return fmt.Errorf("indexing.memory_budget must allow at least 1MiB per worker, got %d",
			i.MemoryBudget)
	}
	if i.MaxSegments <= 0 {
		return fmt.Errorf("indexing.max_segments must be positive, got %d", i.MaxSegments)
	}
	if i.ThrottleRate <= 0 {
		return fmt.Errorf("indexing.throttle_rate must be positive, got %v", i.ThrottleRate)
	}
	return nil
}

type Merge struct {
	Policy      string `json:"policy" yaml:"policy"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
	// SegmentsPerMerge caps how many segments of one level go into a merge.
	SegmentsPerMerge int `json:"segments_per_merge" yaml:"segments_per_merge"`
}

func (m Merge) Validate() error {
	switch m.Policy {
	case MergePolicyLog, MergePolicyNone:
	default:
		return fmt.Errorf("merge.policy must be %q or %q, got %q",
			MergePolicyLog, MergePolicyNone, m.Policy)
	}
	if m.Concurrency <= 0 {
		return fmt.Errorf("merge.concurrency must be positive, got %d", m.Concurrency)
	}
	if m.SegmentsPerMerge < 2 {
		return fmt.Errorf("merge.segments_per_merge must be at least 2, got %d", m.SegmentsPerMerge)
	}
	return nil
}

type DocStore struct {
	Codec       string `json:"codec" yaml:"codec"`
	BlockSize   int    `json:"block_size" yaml:"block_size"`
	CacheBlocks int    `json:"cache_blocks" yaml:"cache_blocks"`
}

func (d DocStore) Validate() error {
	if _, err := compression.Get(d.Codec); err != nil {
		return fmt.Errorf("doc_store.codec: %w", err)
	}
	if d.BlockSize <= 0 {
		return fmt.Errorf("doc_store.block_size must be positive, got %d", d.BlockSize)
	}
	if d.CacheBlocks < 0 {
		return fmt.Errorf("doc_store.cache_blocks must not be negative, got %d", d.CacheBlocks)
	}
	return nil
}

type Reader struct {
	ReloadPolicy string `json:"reload_policy" yaml:"reload_policy"`
	// WatchInterval is how often filesystem indexes are polled for commits
	// of other processes.
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval"`
}

func (r Reader) Validate() error {
	if r.WatchInterval < 0 {
		return fmt.Errorf("reader.watch_interval must not be negative, got %s", r.WatchInterval)
	}
	switch r.ReloadPolicy {
	case ReloadManual, ReloadOnCommit:
		return nil
	default:
		return fmt.Errorf("reader.reload_policy must be %q or %q, got %q",
			ReloadManual, ReloadOnCommit, r.ReloadPolicy)
	}
}

type Search struct {
	// Concurrency bounds how many segments are searched in parallel. Zero
	// means GOMAXPROCS.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Logging: Logging{Level: "info", Format: LogFormatText},
		BM25:    BM25{K1: DefaultBM25k1, B: DefaultBM25b},
		Indexing: Indexing{
			MemoryBudget: defaultMemoryBudget(memory.TotalMemory()),
			NumWorkers:   min(runtime.GOMAXPROCS(0), DefaultMaxNumWorkers),
			MaxSegments:  DefaultMaxSegments,
			ThrottleRate: DefaultThrottleRate,
		},
		Merge: Merge{
			Policy:           MergePolicyLog,
			Concurrency:      DefaultMergeConcurrency,
			SegmentsPerMerge: DefaultMergeSegmentsPer,
		},
		DocStore: DocStore{
			Codec:       compression.LZ4,
			BlockSize:   DefaultDocStoreBlock,
			CacheBlocks: DefaultDocStoreCache,
		},
		Reader:          Reader{ReloadPolicy: ReloadOnCommit, WatchInterval: DefaultWatchInterval},
		Search:          Search{Concurrency: DefaultSearchConcurrency},
		VerifyChecksums: true,
	}
}

// defaultMemoryBudget is an eighth of the machine memory, capped. Zero
// means the total is unknown.
func defaultMemoryBudget(total uint64) uint64 {
	if total == 0 {
		return DefaultMaxMemoryBudget
	}
	return min(total/8, DefaultMaxMemoryBudget)
}

// Validate the configuration
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return configErr(err)
	}

	if err := c.BM25.Validate(); err != nil {
		return configErr(err)
	}

	if err := c.Indexing.Validate(); err != nil {
		return configErr(err)
	}

	if err := c.Merge.Validate(); err != nil {
		return configErr(err)
	}

	if err := c.DocStore.Validate(); err != nil {
		return configErr(err)
	}

	if err := c.Reader.Validate(); err != nil {
		return configErr(err)
	}

	if c.Search.Concurrency < 0 {
		return configErr(fmt.Errorf("search.concurrency must not be negative, got %d",
			c.Search.Concurrency))
	}

	return nil
}

// Load reads the config file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config file %q", path)
		}
		if err := parseConfigFile(file, path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := FromEnv(&cfg); err != nil {
		return cfg, configErr(err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

var fileEnding = regexp.MustCompile(`.*\.(\w+)$`)

func parseConfigFile(file []byte, name string, config *Config) error {
	m := fileEnding.FindStringSubmatch(name)
	if len(m) < 2 {
		return fmt.Errorf("config file does not have a file ending, got '%s'", name)
	}

	switch m[1] {
	case "yaml", "yml":
		if err := yaml.Unmarshal(file, config); err != nil {
			return fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension '%s', use .yaml", m[1])
	}

	return nil
}

func configErr(err error) error {
	return fmt.Errorf("invalid config: %w", err)
}
