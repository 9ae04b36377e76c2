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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CycleTicker drives a CycleManager. CycleExecuted tells the ticker
// whether the last cycle did any work, so it may adapt its interval.
type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	interval time.Duration
	lock     sync.Mutex
	ticker   *time.Ticker
	c        chan time.Time
	done     chan struct{}
}

// NewFixedTicker ticks every interval regardless of the work done.
func NewFixedTicker(interval time.Duration) CycleTicker {
	return &fixedTicker{interval: interval, c: make(chan time.Time, 1)}
}

func (t *fixedTicker) Start() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.ticker != nil {
		return
	}
	t.ticker = time.NewTicker(t.interval)
	t.done = make(chan struct{})
	go forward(t.ticker.C, t.c, t.done)
}

func (t *fixedTicker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.done)
	t.ticker = nil
}

func (t *fixedTicker) C() <-chan time.Time {
	return t.c
}

func (t *fixedTicker) CycleExecuted(bool) {}

func forward(src <-chan time.Time, dst chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case tick := <-src:
			select {
			case dst <- tick:
			default:
			}
		}
	}
}

type backoffTicker struct {
	lock    sync.Mutex
	backoff *backoff.ExponentialBackOff
	timer   *time.Timer
	c       chan time.Time
	done    chan struct{}
	started bool
}

// NewBackoffTicker starts at minInterval and grows the interval
// exponentially up to maxInterval while cycles find nothing to do. A
// cycle that did work resets it to minInterval.
func NewBackoffTicker(minInterval, maxInterval time.Duration) CycleTicker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minInterval
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Multiplier = 2
	return &backoffTicker{backoff: b, c: make(chan time.Time, 1)}
}

func (t *backoffTicker) Start() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.backoff.Reset()
	t.done = make(chan struct{})
	t.schedule(t.backoff.InitialInterval)
}

func (t *backoffTicker) schedule(d time.Duration) {
	done := t.done
	t.timer = time.AfterFunc(d, func() {
		select {
		case <-done:
			return
		default:
		}
		select {
		case t.c <- time.Now():
		default:
		}
	})
}

func (t *backoffTicker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.started {
		return
	}
	t.started = false
	t.timer.Stop()
	close(t.done)
}

func (t *backoffTicker) C() <-chan time.Time {
	return t.c
}

func (t *backoffTicker) CycleExecuted(executed bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.started {
		return
	}
	var next time.Duration
	if executed {
		t.backoff.Reset()
		next = t.backoff.InitialInterval
	} else {
		next = t.backoff.NextBackOff()
	}
	t.timer.Stop()
	t.schedule(next)
}
