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

package cyclemanager

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// UnregisterFunc removes a callback, waiting for a running execution of it
// to finish or ctx to expire.
type UnregisterFunc func(ctx context.Context) error

// CycleCallbacks combines several callbacks into one CycleCallback that
// runs them concurrently, at most routinesLimit at a time.
type CycleCallbacks interface {
	Register(id string, callback CycleCallback) UnregisterFunc
	CycleCallback(shouldAbort ShouldAbortCallback) bool
}

type callbackGroup struct {
	name   string
	logger logrus.FieldLogger
	limit  int

	mu      sync.Mutex
	entries []*callbackEntry
}

type callbackEntry struct {
	name     string
	callback CycleCallback
	removed  bool
	// done is closed when the current run ends, nil while idle.
	done chan struct{}
}

func NewCycleCallbacks(id string, logger logrus.FieldLogger, routinesLimit int) CycleCallbacks {
	return &callbackGroup{
		name:   id,
		logger: logger,
		limit:  max(routinesLimit, 1),
	}
}

func (g *callbackGroup) Register(id string, callback CycleCallback) UnregisterFunc {
	e := &callbackEntry{name: id, callback: callback}
	g.mu.Lock()
	g.entries = append(g.entries, e)
	g.mu.Unlock()

	return func(ctx context.Context) error {
		return g.unregister(ctx, e)
	}
}

func (g *callbackGroup) CycleCallback(shouldAbort ShouldAbortCallback) bool {
	g.mu.Lock()
	entries := slices.Clone(g.entries)
	g.mu.Unlock()

	var executed atomic.Bool
	eg := &errgroup.Group{}
	eg.SetLimit(g.limit)
	for _, e := range entries {
		if shouldAbort() {
			break
		}
		eg.Go(func() error {
			done, ok := g.begin(e)
			if !ok {
				return nil
			}
			defer g.end(e, done)
			if e.callback(shouldAbort) {
				executed.Store(true)
			}
			return nil
		})
	}
	eg.Wait()
	return executed.Load()
}

func (g *callbackGroup) begin(e *callbackEntry) (chan struct{}, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.removed {
		return nil, false
	}
	e.done = make(chan struct{})
	return e.done, true
}

func (g *callbackGroup) end(e *callbackEntry, done chan struct{}) {
	if r := recover(); r != nil {
		g.logger.WithFields(logrus.Fields{
			"action":       "cyclemanager",
			"callback_id":  e.name,
			"callbacks_id": g.name,
		}).Errorf("callback panic: %v", r)
	}
	g.mu.Lock()
	e.done = nil
	g.mu.Unlock()
	close(done)
}

func (g *callbackGroup) unregister(ctx context.Context, e *callbackEntry) error {
	g.mu.Lock()
	e.removed = true
	g.entries = slices.DeleteFunc(g.entries, func(other *callbackEntry) bool { return other == e })
	done := e.done
	g.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "unregister callback %q of %q", e.name, g.name)
	}
}
