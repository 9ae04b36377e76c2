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
	"sync"

	"github.com/pkg/errors"
)

type (
	// ShouldAbortCallback reports whether a stop was requested, long
	// running callbacks check it to return early.
	ShouldAbortCallback func() bool
	// CycleCallback returns whether it did any work in this cycle.
	CycleCallback func(shouldAbort ShouldAbortCallback) bool
)

type CycleManager interface {
	Start()
	StopAndWait(ctx context.Context) error
	Running() bool
}

type cycleManager struct {
	callback CycleCallback
	ticker   CycleTicker

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New runs callback on every tick of cycleTicker once started.
func New(cycleTicker CycleTicker, callback CycleCallback) CycleManager {
	return &cycleManager{callback: callback, ticker: cycleTicker}
}

// Start does not block and does nothing if the manager already runs.
func (c *cycleManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop, c.done = make(chan struct{}), make(chan struct{})
	go c.loop(c.stop, c.done)
}

func (c *cycleManager) loop(stop, done chan struct{}) {
	defer close(done)
	c.ticker.Start()
	defer c.ticker.Stop()

	shouldAbort := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}
	for {
		select {
		case <-stop:
			return
		case <-c.ticker.C():
		}
		// stop has priority if both were ready
		if shouldAbort() {
			return
		}
		c.ticker.CycleExecuted(c.callback(shouldAbort))
	}
}

// StopAndWait asks the running cycle to stop and blocks until it did or
// ctx expired. An expired ctx does not cancel the stop.
func (c *cycleManager) StopAndWait(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "stop cycle")
	}
}

func (c *cycleManager) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
