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
	"strconv"

	"github.com/pkg/errors"
)

const envPrefix = "TEXTINDEX_"

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if err := parseFloat32(envPrefix+"BM25_K1", &config.BM25.K1); err != nil {
		return err
	}

	if err := parseFloat32(envPrefix+"BM25_B", &config.BM25.B); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "MEMORY_BUDGET"); v != "" {
		asUint, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse %sMEMORY_BUDGET as uint", envPrefix)
		}
		config.Indexing.MemoryBudget = asUint
	}

	if err := parsePositiveInt(envPrefix+"NUM_WORKERS", &config.Indexing.NumWorkers); err != nil {
		return err
	}

	if err := parsePositiveInt(envPrefix+"MAX_SEGMENTS", &config.Indexing.MaxSegments); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "THROTTLE_RATE"); v != "" {
		asFloat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "parse %sTHROTTLE_RATE as float", envPrefix)
		}
		if asFloat <= 0 {
			return fmt.Errorf("%sTHROTTLE_RATE must be positive, got %v", envPrefix, asFloat)
		}
		config.Indexing.ThrottleRate = asFloat
	}

	if v := os.Getenv(envPrefix + "MERGE_POLICY"); v != "" {
		config.Merge.Policy = v
	}

	if err := parsePositiveInt(envPrefix+"MERGE_CONCURRENCY", &config.Merge.Concurrency); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "DOC_STORE_CODEC"); v != "" {
		config.DocStore.Codec = v
	}

	if err := parsePositiveInt(envPrefix+"DOC_STORE_BLOCK_SIZE", &config.DocStore.BlockSize); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "READER_RELOAD_POLICY"); v != "" {
		config.Reader.ReloadPolicy = v
	}

	if err := parsePositiveInt(envPrefix+"SEARCH_CONCURRENCY", &config.Search.Concurrency); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "VERIFY_CHECKSUMS"); v != "" {
		config.VerifyChecksums = enabled(v)
	}

	return nil
}

func parsePositiveInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}

	asInt, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as int", name)
	}
	if asInt <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, asInt)
	}

	*target = asInt
	return nil
}

func parseFloat32(name string, target *float32) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}

	asFloat, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return errors.Wrapf(err, "parse %s as float", name)
	}

	*target = float32(asFloat)
	return nil
}

func enabled(value string) bool {
	if value == "" {
		return false
	}

	if value == "on" ||
		value == "enabled" ||
		value == "1" ||
		value == "true" {
		return true
	}

	return false
}
