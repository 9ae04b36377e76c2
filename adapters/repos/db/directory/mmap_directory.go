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
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"golang.org/x/sys/unix"
)

// DefaultWatchInterval is how often an MMapDirectory polls watched files
// for changes made by other processes.
const DefaultWatchInterval = 500 * time.Millisecond

// MMapDirectory stores every file as a regular file below root and reads
// them through memory maps.
type MMapDirectory struct {
	root    string
	logger  logrus.FieldLogger
	router  *watchRouter
	watcher *pollingWatcher
}

func joinPath(root, name string) string {
	return filepath.Join(root, name)
}

// OpenMMapDirectory creates root if needed.
func OpenMMapDirectory(root string, watchInterval time.Duration, logger logrus.FieldLogger) (*MMapDirectory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, enterrors.NewIOError("create directory", root, err)
	}
	if watchInterval <= 0 {
		watchInterval = DefaultWatchInterval
	}
	router := newWatchRouter(logger)
	d := &MMapDirectory{
		root:    root,
		logger:  logger,
		router:  router,
		watcher: newPollingWatcher(router, root, watchInterval),
	}
	d.watcher.start()
	return d, nil
}

func (d *MMapDirectory) Root() string {
	return d.root
}

func (d *MMapDirectory) OpenRead(name string) (FileSlice, error) {
	path := joinPath(d.root, name)
	f, err := os.Open(path)
	if err != nil {
		return FileSlice{}, enterrors.NewIOError("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileSlice{}, enterrors.NewIOError("stat", path, err)
	}
	if info.Size() == 0 {
		// empty files cannot be mapped
		return NewFileSlice(nil), nil
	}
	m, err := mmap.MapRegion(f, int(info.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		return FileSlice{}, enterrors.NewIOError("mmap", path, err)
	}
	return newMMapSlice(m), nil
}

type fileWritePtr struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func (d *MMapDirectory) OpenWrite(name string) (WritePtr, error) {
	path := joinPath(d.root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, enterrors.NewIOError("create", path, err)
	}
	return &fileWritePtr{path: path, f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (p *fileWritePtr) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if err != nil {
		return n, enterrors.NewIOError("write", p.path, err)
	}
	return n, nil
}

func (p *fileWritePtr) Terminate() error {
	if err := p.w.Flush(); err != nil {
		p.f.Close()
		return enterrors.NewIOError("flush", p.path, err)
	}
	if err := p.f.Sync(); err != nil {
		p.f.Close()
		return enterrors.NewIOError("fsync", p.path, err)
	}
	if err := p.f.Close(); err != nil {
		return enterrors.NewIOError("close", p.path, err)
	}
	return nil
}

func (p *fileWritePtr) Abort() error {
	p.f.Close()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return enterrors.NewIOError("remove", p.path, err)
	}
	return nil
}

func (d *MMapDirectory) AtomicRead(name string) ([]byte, error) {
	path := joinPath(d.root, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, enterrors.NewIOError("read", path, err)
	}
	return data, nil
}

// AtomicWrite writes a temporary file, syncs it and renames it over name.
func (d *MMapDirectory) AtomicWrite(name string, data []byte) error {
	path := joinPath(d.root, name)
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return enterrors.NewIOError("create", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return enterrors.NewIOError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return enterrors.NewIOError("fsync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return enterrors.NewIOError("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return enterrors.NewIOError("rename", path, err)
	}
	if err := d.syncRoot(); err != nil {
		return err
	}
	d.watcher.remember(name)
	d.router.broadcast(name)
	return nil
}

func (d *MMapDirectory) syncRoot() error {
	dir, err := os.Open(d.root)
	if err != nil {
		return enterrors.NewIOError("open", d.root, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return enterrors.NewIOError("fsync", d.root, err)
	}
	return nil
}

func (d *MMapDirectory) Delete(name string) error {
	path := joinPath(d.root, name)
	if err := os.Remove(path); err != nil {
		return enterrors.NewIOError("remove", path, err)
	}
	return nil
}

func (d *MMapDirectory) Exists(name string) (bool, error) {
	path := joinPath(d.root, name)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, enterrors.NewIOError("stat", path, err)
}

func (d *MMapDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, enterrors.NewIOError("list", d.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || isTemp(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (d *MMapDirectory) Watch(name string, cb func()) (WatchHandle, error) {
	d.watcher.remember(name)
	return d.router.subscribe(name, cb), nil
}

type flockLock struct {
	path string
	f    *os.File
}

// AcquireLock takes an exclusive, non blocking flock. The lock is released
// by the kernel if the process dies.
func (d *MMapDirectory) AcquireLock(name string) (Lock, error) {
	path := joinPath(d.root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, enterrors.NewIOError("open lock", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, enterrors.NewLockError(path, errors.New("held by another writer"))
		}
		return nil, enterrors.NewLockError(path, err)
	}
	return &flockLock{path: path, f: f}, nil
}

func (l *flockLock) Release() error {
	defer l.f.Close()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return enterrors.NewIOError("unlock", l.path, err)
	}
	return nil
}

func (d *MMapDirectory) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.watcher.stop(ctx); err != nil {
		return errors.Wrap(err, "stop directory watcher")
	}
	return nil
}
