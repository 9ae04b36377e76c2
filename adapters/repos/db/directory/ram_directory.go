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
	"bytes"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// inProcessLocks implements AcquireLock for backends that are only shared
// within one process.
type inProcessLocks struct {
	sync.Mutex
	held map[string]struct{}
}

type inProcessLock struct {
	locks *inProcessLocks
	name  string
}

func (l *inProcessLocks) acquire(name string) (Lock, error) {
	l.Lock()
	defer l.Unlock()
	if l.held == nil {
		l.held = map[string]struct{}{}
	}
	if _, ok := l.held[name]; ok {
		return nil, enterrors.NewLockError(name, errors.New("held by another writer"))
	}
	l.held[name] = struct{}{}
	return &inProcessLock{locks: l, name: name}, nil
}

func (l *inProcessLock) Release() error {
	l.locks.Lock()
	defer l.locks.Unlock()
	delete(l.locks.held, l.name)
	return nil
}

// RAMDirectory keeps every file in memory. It is meant for tests and
// short lived indexes.
type RAMDirectory struct {
	sync.RWMutex
	files  map[string][]byte
	router *watchRouter
	locks  inProcessLocks
}

func NewRAMDirectory(logger logrus.FieldLogger) *RAMDirectory {
	return &RAMDirectory{files: map[string][]byte{}, router: newWatchRouter(logger)}
}

func notFound(op, name string) error {
	return enterrors.NewIOError(op, name, os.ErrNotExist)
}

func (d *RAMDirectory) OpenRead(name string) (FileSlice, error) {
	d.RLock()
	defer d.RUnlock()
	data, ok := d.files[name]
	if !ok {
		return FileSlice{}, notFound("open", name)
	}
	return NewFileSlice(data), nil
}

type bufferWritePtr struct {
	name    string
	buf     bytes.Buffer
	commit  func(name string, data []byte) error
	discard func(name string)
	done    bool
}

func (p *bufferWritePtr) Write(b []byte) (int, error) {
	if p.done {
		return 0, enterrors.NewIOError("write", p.name, os.ErrClosed)
	}
	return p.buf.Write(b)
}

func (p *bufferWritePtr) Terminate() error {
	if p.done {
		return nil
	}
	p.done = true
	return p.commit(p.name, p.buf.Bytes())
}

func (p *bufferWritePtr) Abort() error {
	p.done = true
	p.discard(p.name)
	return nil
}

func (d *RAMDirectory) OpenWrite(name string) (WritePtr, error) {
	d.Lock()
	defer d.Unlock()
	if _, ok := d.files[name]; ok {
		return nil, enterrors.NewIOError("create", name, os.ErrExist)
	}
	// reserve the name, the content becomes visible on Terminate
	d.files[name] = nil
	return &bufferWritePtr{
		name: name,
		commit: func(name string, data []byte) error {
			d.Lock()
			defer d.Unlock()
			d.files[name] = data
			return nil
		},
		discard: func(name string) {
			d.Lock()
			defer d.Unlock()
			delete(d.files, name)
		},
	}, nil
}

func (d *RAMDirectory) AtomicRead(name string) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()
	data, ok := d.files[name]
	if !ok {
		return nil, notFound("read", name)
	}
	return append([]byte(nil), data...), nil
}

func (d *RAMDirectory) AtomicWrite(name string, data []byte) error {
	d.Lock()
	d.files[name] = append([]byte(nil), data...)
	d.Unlock()
	d.router.broadcast(name)
	return nil
}

func (d *RAMDirectory) Delete(name string) error {
	d.Lock()
	defer d.Unlock()
	if _, ok := d.files[name]; !ok {
		return notFound("remove", name)
	}
	delete(d.files, name)
	return nil
}

func (d *RAMDirectory) Exists(name string) (bool, error) {
	d.RLock()
	defer d.RUnlock()
	_, ok := d.files[name]
	return ok, nil
}

func (d *RAMDirectory) List() ([]string, error) {
	d.RLock()
	defer d.RUnlock()
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *RAMDirectory) Watch(name string, cb func()) (WatchHandle, error) {
	return d.router.subscribe(name, cb), nil
}

func (d *RAMDirectory) AcquireLock(name string) (Lock, error) {
	return d.locks.acquire(name)
}

// TotalSize is the number of bytes held by all files.
func (d *RAMDirectory) TotalSize() int {
	d.RLock()
	defer d.RUnlock()
	total := 0
	for _, data := range d.files {
		total += len(data)
	}
	return total
}

func (d *RAMDirectory) Close() error {
	return nil
}
