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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentNumWorkers(t *testing.T) {
	factors := []struct {
		name        string
		numWorkers  []string
		expected    int
		expectedErr bool
	}{
		{"Valid number", []string{"3"}, 3, false},
		{"not given", []string{}, 0, false},
		{"zero", []string{"0"}, 0, true},
		{"negative", []string{"-2"}, 0, true},
		{"not parsable", []string{"many"}, 0, true},
	}
	for _, tt := range factors {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if len(tt.numWorkers) == 1 {
				os.Setenv("TEXTINDEX_NUM_WORKERS", tt.numWorkers[0])
			}
			conf := Config{}
			err := FromEnv(&conf)

			if tt.expectedErr {
				require.NotNil(t, err)
			} else {
				require.Nil(t, err)
				require.Equal(t, tt.expected, conf.Indexing.NumWorkers)
			}
		})
	}
}

func TestEnvironmentBM25(t *testing.T) {
	factors := []struct {
		name        string
		k1, b       string
		expectedK1  float32
		expectedB   float32
		expectedErr bool
	}{
		{"both given", "1.5", "0.5", 1.5, 0.5, false},
		{"only k1", "2", "", 2, DefaultBM25b, false},
		{"not given", "", "", DefaultBM25k1, DefaultBM25b, false},
		{"not parsable", "high", "", 0, 0, true},
	}
	for _, tt := range factors {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.k1 != "" {
				os.Setenv("TEXTINDEX_BM25_K1", tt.k1)
			}
			if tt.b != "" {
				os.Setenv("TEXTINDEX_BM25_B", tt.b)
			}
			conf := Config{BM25: BM25{K1: DefaultBM25k1, B: DefaultBM25b}}
			err := FromEnv(&conf)

			if tt.expectedErr {
				require.NotNil(t, err)
			} else {
				require.Nil(t, err)
				assert.Equal(t, tt.expectedK1, conf.BM25.K1)
				assert.Equal(t, tt.expectedB, conf.BM25.B)
			}
		})
	}
}

func TestEnvironmentVerifyChecksums(t *testing.T) {
	factors := []struct {
		name     string
		value    []string
		expected bool
	}{
		{"enabled", []string{"true"}, true},
		{"on", []string{"on"}, true},
		{"disabled", []string{"false"}, false},
		{"not given keeps previous", []string{}, true},
	}
	for _, tt := range factors {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if len(tt.value) == 1 {
				os.Setenv("TEXTINDEX_VERIFY_CHECKSUMS", tt.value[0])
			}
			conf := Config{VerifyChecksums: true}
			require.Nil(t, FromEnv(&conf))
			assert.Equal(t, tt.expected, conf.VerifyChecksums)
		})
	}
}

func TestEnvironmentStrings(t *testing.T) {
	os.Clearenv()
	os.Setenv("TEXTINDEX_LOG_LEVEL", "debug")
	os.Setenv("TEXTINDEX_LOG_FORMAT", "json")
	os.Setenv("TEXTINDEX_MERGE_POLICY", "none")
	os.Setenv("TEXTINDEX_DOC_STORE_CODEC", "zstd")
	os.Setenv("TEXTINDEX_READER_RELOAD_POLICY", "manual")
	os.Setenv("TEXTINDEX_MEMORY_BUDGET", "67108864")
	os.Setenv("TEXTINDEX_THROTTLE_RATE", "250.5")

	conf := Default()
	require.Nil(t, FromEnv(&conf))

	assert.Equal(t, "debug", conf.Logging.Level)
	assert.Equal(t, LogFormatJSON, conf.Logging.Format)
	assert.Equal(t, MergePolicyNone, conf.Merge.Policy)
	assert.Equal(t, "zstd", conf.DocStore.Codec)
	assert.Equal(t, ReloadManual, conf.Reader.ReloadPolicy)
	assert.Equal(t, uint64(64*1024*1024), conf.Indexing.MemoryBudget)
	assert.Equal(t, 250.5, conf.Indexing.ThrottleRate)
	assert.Nil(t, conf.Validate())
}
