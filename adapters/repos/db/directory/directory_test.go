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

package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/textindex/entities/errors"
)

func directories(t *testing.T) map[string]func() Directory {
	logger, _ := test.NewNullLogger()
	return map[string]func() Directory{
		"ram": func() Directory {
			return NewRAMDirectory(logger)
		},
		"mmap": func() Directory {
			d, err := OpenMMapDirectory(t.TempDir(), 10*time.Millisecond, logger)
			require.NoError(t, err)
			return d
		},
		"bolt": func() Directory {
			d, err := OpenBoltDirectory(filepath.Join(t.TempDir(), "index.db"), logger)
			require.NoError(t, err)
			return d
		},
	}
}

func writeFile(t *testing.T, d Directory, name string, chunks ...string) {
	w, err := d.OpenWrite(name)
	require.NoError(t, err)
	for _, c := range chunks {
		_, err := w.Write([]byte(c))
		require.NoError(t, err)
	}
	require.NoError(t, w.Terminate())
}

func TestDirectories(t *testing.T) {
	for name, open := range directories(t) {
		t.Run(name, func(t *testing.T) {
			d := open()
			defer d.Close()

			t.Run("write and read", func(t *testing.T) {
				writeFile(t, d, "a.bin", "hello ", "world")
				f, err := d.OpenRead("a.bin")
				require.NoError(t, err)
				assert.Equal(t, "hello world", string(f.Bytes()))
				part, err := f.Slice(6, 11)
				require.NoError(t, err)
				assert.Equal(t, "world", string(part.Bytes()))
				require.NoError(t, f.Close())

				_, err = d.OpenWrite("a.bin")
				assert.ErrorIs(t, err, errors.ErrIO)
			})

			t.Run("empty file", func(t *testing.T) {
				writeFile(t, d, "empty.bin")
				f, err := d.OpenRead("empty.bin")
				require.NoError(t, err)
				assert.Equal(t, uint64(0), f.Len())
				require.NoError(t, f.Close())
			})

			t.Run("missing file", func(t *testing.T) {
				_, err := d.OpenRead("missing")
				assert.ErrorIs(t, err, errors.ErrIO)
				assert.ErrorIs(t, err, os.ErrNotExist)
				exists, err := d.Exists("missing")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("atomic write replaces", func(t *testing.T) {
				require.NoError(t, d.AtomicWrite("meta.json", []byte("v1")))
				require.NoError(t, d.AtomicWrite("meta.json", []byte("v2")))
				data, err := d.AtomicRead("meta.json")
				require.NoError(t, err)
				assert.Equal(t, "v2", string(data))
			})

			t.Run("list and delete", func(t *testing.T) {
				names, err := d.List()
				require.NoError(t, err)
				assert.Subset(t, names, []string{"a.bin", "empty.bin", "meta.json"})

				require.NoError(t, d.Delete("a.bin"))
				exists, err := d.Exists("a.bin")
				require.NoError(t, err)
				assert.False(t, exists)
				assert.Error(t, d.Delete("a.bin"))
			})

			t.Run("abort discards", func(t *testing.T) {
				w, err := d.OpenWrite("aborted.bin")
				require.NoError(t, err)
				_, err = w.Write([]byte("x"))
				require.NoError(t, err)
				require.NoError(t, w.Abort())
				exists, err := d.Exists("aborted.bin")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("lock", func(t *testing.T) {
				lock, err := d.AcquireLock("writer.lock")
				require.NoError(t, err)
				_, err = d.AcquireLock("writer.lock")
				assert.ErrorIs(t, err, errors.ErrLock)
				require.NoError(t, lock.Release())

				lock, err = d.AcquireLock("writer.lock")
				require.NoError(t, err)
				require.NoError(t, lock.Release())
			})

			t.Run("watch", func(t *testing.T) {
				changed := make(chan struct{}, 10)
				handle, err := d.Watch("meta.json", func() { changed <- struct{}{} })
				require.NoError(t, err)
				require.NoError(t, d.AtomicWrite("meta.json", []byte("v3")))
				select {
				case <-changed:
				case <-time.After(time.Second):
					t.Fatal("watch callback not called")
				}
				handle.Unwatch()
			})
		})
	}
}

func TestMMapDirectoryWatchesOtherWriters(t *testing.T) {
	logger, _ := test.NewNullLogger()
	root := t.TempDir()
	d, err := OpenMMapDirectory(root, 5*time.Millisecond, logger)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.AtomicWrite("meta.json", []byte("v1")))

	changed := make(chan struct{}, 10)
	_, err = d.Watch("meta.json", func() { changed <- struct{}{} })
	require.NoError(t, err)

	// another process replacing the file
	require.NoError(t, os.WriteFile(filepath.Join(root, "meta.json"), []byte("version two"), 0o644))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change made outside the directory not detected")
	}
}

func TestManagedDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ram := NewRAMDirectory(logger)
	m, err := NewManagedDirectory(ram, true, logger)
	require.NoError(t, err)

	writeFile(t, m, "seg1.idx", "some ", "content")
	writeFile(t, m, "seg2.idx", "other content")

	t.Run("footer is stripped and verified", func(t *testing.T) {
		f, err := m.OpenRead("seg1.idx")
		require.NoError(t, err)
		assert.Equal(t, "some content", string(f.Bytes()))

		raw, err := ram.OpenRead("seg1.idx")
		require.NoError(t, err)
		assert.Equal(t, len("some content")+FooterSize, int(raw.Len()))
	})

	t.Run("corruption is detected", func(t *testing.T) {
		raw, _ := ram.OpenRead("seg2.idx")
		raw.Bytes()[0] ^= 0xff
		_, err := m.OpenRead("seg2.idx")
		assert.ErrorIs(t, err, errors.ErrCorruptedData)

		lenient, err := NewManagedDirectory(ram, false, logger)
		require.NoError(t, err)
		_, err = lenient.OpenRead("seg2.idx")
		assert.NoError(t, err)
	})

	t.Run("managed list survives reopening", func(t *testing.T) {
		reopened, err := NewManagedDirectory(ram, true, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"seg1.idx", "seg2.idx"}, reopened.Managed())
	})

	t.Run("garbage collection", func(t *testing.T) {
		require.NoError(t, m.AtomicWrite("meta.json", []byte("{}")))
		deleted, err := m.GarbageCollect(func(name string) bool { return name == "seg1.idx" })
		require.NoError(t, err)
		assert.Equal(t, []string{"seg2.idx"}, deleted)
		assert.Equal(t, []string{"seg1.idx"}, m.Managed())

		exists, _ := ram.Exists("meta.json")
		assert.True(t, exists, "files written atomically are not managed")
	})
}

func TestFaultyDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	f := NewFaultyDirectory(NewRAMDirectory(logger))
	f.FailWrites(func(name string) bool { return name == "bad.bin" })

	w, err := f.OpenWrite("bad.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, errors.ErrIO)
	require.NoError(t, w.Abort())

	writeFile(t, f, "good.bin", "x")
	assert.Equal(t, 1, f.Failures())

	f.FailAtomicWrites(func(string) bool { return true })
	assert.ErrorIs(t, f.AtomicWrite("meta.json", nil), errors.ErrIO)
}
