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

package errors

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Run("kind survives wrapping", func(t *testing.T) {
		err := pkgerrors.Wrap(NewIOError("write", "seg.idx", errors.New("disk full")), "flush segment")
		assert.True(t, errors.Is(err, ErrIO))
		assert.False(t, errors.Is(err, ErrCorruptedData))
		assert.Contains(t, err.Error(), "disk full")
		assert.Contains(t, err.Error(), "seg.idx")
	})

	t.Run("corrupted", func(t *testing.T) {
		err := NewCorruptedError("meta.json", "checksum mismatch: %d != %d", 1, 2)
		assert.True(t, IsCorrupted(err))
		assert.Contains(t, err.Error(), "checksum mismatch: 1 != 2")
	})

	t.Run("unwrap reaches the cause", func(t *testing.T) {
		cause := errors.New("held by pid 42")
		err := NewLockError("writer.lock", cause)
		assert.True(t, errors.Is(err, ErrLock))
		assert.True(t, errors.Is(err, cause))
	})
}

func TestErrorGroupWrapper(t *testing.T) {
	logger, hook := test.NewNullLogger()

	t.Run("first error is returned", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger)
		eg.Go(func() error { return nil })
		eg.Go(func() error { return ErrSchema })
		assert.ErrorIs(t, eg.Wait(), ErrSchema)
	})

	t.Run("panic becomes an error", func(t *testing.T) {
		hook.Reset()
		eg := NewErrorGroupWrapper(logger, "segment", 3)
		eg.Go(func() error { panic("boom") })
		err := eg.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		require.NotEmpty(t, hook.AllEntries())
		assert.Equal(t, "recover_panic", hook.LastEntry().Data["action"])
	})
}
