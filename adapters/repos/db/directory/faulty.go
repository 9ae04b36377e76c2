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
	"sync"

	"github.com/pkg/errors"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// FaultyDirectory injects write failures into another directory. It lets
// tests exercise the error paths of flushes, merges and commits.
type FaultyDirectory struct {
	Directory

	lock        sync.Mutex
	failWrite   func(name string) bool
	failAtomic  func(name string) bool
	failedCount int
}

func NewFaultyDirectory(d Directory) *FaultyDirectory {
	return &FaultyDirectory{Directory: d}
}

// FailWrites makes writes to files matching pred fail. nil stops failing.
func (f *FaultyDirectory) FailWrites(pred func(name string) bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failWrite = pred
}

// FailAtomicWrites makes AtomicWrite of files matching pred fail.
func (f *FaultyDirectory) FailAtomicWrites(pred func(name string) bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failAtomic = pred
}

// Failures counts the injected failures.
func (f *FaultyDirectory) Failures() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.failedCount
}

func (f *FaultyDirectory) shouldFail(pred func(string) bool, name string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	if pred != nil && pred(name) {
		f.failedCount++
		return true
	}
	return false
}

var errInjected = errors.New("injected failure")

type faultyWritePtr struct {
	WritePtr
	name string
}

func (p *faultyWritePtr) Write(b []byte) (int, error) {
	return 0, enterrors.NewIOError("write", p.name, errInjected)
}

func (p *faultyWritePtr) Terminate() error {
	return enterrors.NewIOError("fsync", p.name, errInjected)
}

func (f *FaultyDirectory) OpenWrite(name string) (WritePtr, error) {
	w, err := f.Directory.OpenWrite(name)
	if err != nil {
		return nil, err
	}
	f.lock.Lock()
	pred := f.failWrite
	f.lock.Unlock()
	if f.shouldFail(pred, name) {
		return &faultyWritePtr{WritePtr: w, name: name}, nil
	}
	return w, nil
}

func (f *FaultyDirectory) AtomicWrite(name string, data []byte) error {
	f.lock.Lock()
	pred := f.failAtomic
	f.lock.Unlock()
	if f.shouldFail(pred, name) {
		return enterrors.NewIOError("atomic write", name, errInjected)
	}
	return f.Directory.AtomicWrite(name, data)
}
