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

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/adapters/repos/db"
	"github.com/weaviate/textindex/entities/document"
	"github.com/weaviate/textindex/entities/schema"
	"github.com/weaviate/textindex/usecases/config"
)

func seedIndex(t *testing.T) string {
	path := t.TempDir()
	logger, _ := test.NewNullLogger()

	b := schema.NewBuilder()
	body := b.AddTextField("body", schema.TextOptions.WithStored())
	s, err := b.Build()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Indexing.NumWorkers = 1
	cfg.Indexing.MemoryBudget = 8 * 1024 * 1024
	cfg.Merge.Policy = config.MergePolicyNone

	idx, err := db.OpenFS(path, s, cfg, logger, nil)
	require.NoError(t, err)
	defer idx.Close(context.Background())
	w, err := idx.Writer()
	require.NoError(t, err)

	for _, batch := range [][]string{{"first doc", "second doc"}, {"third doc"}} {
		for _, text := range batch {
			_, err := w.AddDocument(context.Background(), document.New().AddText(body, text))
			require.NoError(t, err)
		}
		_, err := w.Commit(context.Background())
		require.NoError(t, err)
	}
	_, err = w.DeleteByTerm(schema.TermFromText(body, "first"))
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	args = append([]string{"textindex", "--log-level", "error"}, args...)
	err := newApp(&out).RunContext(context.Background(), args)
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := seedIndex(t)

	out, err := run(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "segments: 2")
	assert.Contains(t, out, "body (text)")
	assert.Contains(t, out, "alive docs: 2")
}

func TestMergeThenGC(t *testing.T) {
	path := seedIndex(t)

	out, err := run(t, "merge", path)
	require.NoError(t, err)
	assert.Contains(t, out, "merged 2 segments")
	assert.Contains(t, out, "with 2 docs")

	out, err = run(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "segments: 1")
	assert.Contains(t, out, "alive docs: 2")

	out, err = run(t, "merge", path)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to merge")

	out, err = run(t, "gc", path)
	require.NoError(t, err)
	assert.Contains(t, out, "file(s)")
}

func TestArguments(t *testing.T) {
	_, err := run(t, "inspect")
	assert.Error(t, err)

	_, err = run(t, "inspect", t.TempDir())
	assert.Error(t, err)

	_, err = run(t, "--log-format", "xml", "inspect", seedIndex(t))
	assert.Error(t, err)
}
