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

package indexer

import (
	"strings"

	"github.com/weaviate/textindex/adapters/repos/db/segment"
)

// GarbageCollectFiles deletes the managed files which are referenced
// neither by the last commit, by uncommitted or in flight segments, nor
// by the protected files hook. It returns the deleted file names.
func (w *IndexWriter) GarbageCollectFiles() ([]string, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	return w.collectGarbage()
}

func (w *IndexWriter) collectGarbage() ([]string, error) {
	w.metaLock.Lock()
	defer w.metaLock.Unlock()
	w.segLock.Lock()
	defer w.segLock.Unlock()

	living := w.committed.Files()
	for _, p := range w.pending {
		for _, f := range p.meta.Files() {
			living[f] = struct{}{}
		}
	}
	var protected map[string]struct{}
	if w.protected != nil {
		protected = w.protected()
	}

	deleted, err := w.dir.GarbageCollect(func(name string) bool {
		if _, ok := living[name]; ok {
			return true
		}
		if _, ok := protected[name]; ok {
			return true
		}
		if id, ok := segmentOf(name); ok {
			if _, ok := w.inFlight[id]; ok {
				return true
			}
		}
		return false
	})
	w.metrics.FilesCollected(len(deleted))
	return deleted, err
}

// segmentOf returns the segment a file belongs to.
func segmentOf(name string) (segment.ID, bool) {
	prefix, _, ok := strings.Cut(name, ".")
	if !ok {
		return segment.ID{}, false
	}
	id, err := segment.ParseID(prefix)
	if err != nil {
		return segment.ID{}, false
	}
	return id, true
}
