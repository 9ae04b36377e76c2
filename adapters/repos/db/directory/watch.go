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
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/weaviate/textindex/entities/cyclemanager"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// watchRouter dispatches change notifications to the callbacks registered
// per file name.
type watchRouter struct {
	sync.Mutex
	logger    logrus.FieldLogger
	nextID    uint64
	callbacks map[string]map[uint64]func()
}

func newWatchRouter(logger logrus.FieldLogger) *watchRouter {
	return &watchRouter{logger: logger, callbacks: map[string]map[uint64]func(){}}
}

type watchHandle struct {
	router *watchRouter
	name   string
	id     uint64
}

func (h *watchHandle) Unwatch() {
	h.router.Lock()
	defer h.router.Unlock()
	delete(h.router.callbacks[h.name], h.id)
	if len(h.router.callbacks[h.name]) == 0 {
		delete(h.router.callbacks, h.name)
	}
}

func (r *watchRouter) subscribe(name string, cb func()) *watchHandle {
	r.Lock()
	defer r.Unlock()
	id := r.nextID
	r.nextID++
	if r.callbacks[name] == nil {
		r.callbacks[name] = map[uint64]func(){}
	}
	r.callbacks[name][id] = cb
	return &watchHandle{router: r, name: name, id: id}
}

func (r *watchRouter) watched() []string {
	r.Lock()
	defer r.Unlock()
	names := make([]string, 0, len(r.callbacks))
	for name := range r.callbacks {
		names = append(names, name)
	}
	return names
}

// broadcast runs the callbacks of name in the background.
func (r *watchRouter) broadcast(name string) {
	r.Lock()
	cbs := make([]func(), 0, len(r.callbacks[name]))
	for _, cb := range r.callbacks[name] {
		cbs = append(cbs, cb)
	}
	r.Unlock()

	for _, cb := range cbs {
		enterrors.GoWrapper(cb, r.logger.WithField("action", "directory_watch").WithField("file", name))
	}
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// pollingWatcher detects changes made by other processes by polling the
// modification time and size of the watched files.
type pollingWatcher struct {
	router *watchRouter
	root   string
	cycle  cyclemanager.CycleManager

	lock   sync.Mutex
	stamps map[string]fileStamp
}

func newPollingWatcher(router *watchRouter, root string, interval time.Duration) *pollingWatcher {
	w := &pollingWatcher{router: router, root: root, stamps: map[string]fileStamp{}}
	w.cycle = cyclemanager.New(cyclemanager.NewFixedTicker(interval), w.poll)
	return w
}

func (w *pollingWatcher) start() {
	w.cycle.Start()
}

func (w *pollingWatcher) stamp(name string) (fileStamp, bool) {
	info, err := os.Stat(joinPath(w.root, name))
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}

// remember records the current state of name so that a change made by
// this process is not reported twice.
func (w *pollingWatcher) remember(name string) {
	s, ok := w.stamp(name)
	w.lock.Lock()
	defer w.lock.Unlock()
	if ok {
		w.stamps[name] = s
	}
}

func (w *pollingWatcher) poll(shouldAbort cyclemanager.ShouldAbortCallback) bool {
	changed := false
	for _, name := range w.router.watched() {
		if shouldAbort() {
			break
		}
		s, ok := w.stamp(name)
		if !ok {
			continue
		}
		w.lock.Lock()
		prev, seen := w.stamps[name]
		w.stamps[name] = s
		w.lock.Unlock()
		if seen && (prev.modTime != s.modTime || prev.size != s.size) {
			w.router.broadcast(name)
			changed = true
		}
	}
	return changed
}

func (w *pollingWatcher) stop(ctx context.Context) error {
	return w.cycle.StopAndWait(ctx)
}
