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
	"io"
	"strings"
)

// Directory is the storage backend of an index. Files are written once
// through OpenWrite and never modified afterwards, except for the small
// files replaced as a whole through AtomicWrite.
type Directory interface {
	// OpenRead returns the whole content of a file written by OpenWrite.
	OpenRead(name string) (FileSlice, error)
	// OpenWrite creates a new file. It fails if the file exists.
	OpenWrite(name string) (WritePtr, error)
	// AtomicRead returns a file written by AtomicWrite.
	AtomicRead(name string) ([]byte, error)
	// AtomicWrite replaces name with data. Readers observe either the old
	// or the new content, never a mix.
	AtomicWrite(name string, data []byte) error
	Delete(name string) error
	Exists(name string) (bool, error)
	List() ([]string, error)
	// Watch calls cb after name was replaced through AtomicWrite, by this
	// or another process where the backend allows it.
	Watch(name string, cb func()) (WatchHandle, error)
	// AcquireLock fails with a LockError if the lock is held elsewhere.
	AcquireLock(name string) (Lock, error)
	Close() error
}

// WritePtr is an append only file being written.
type WritePtr interface {
	io.Writer
	// Terminate flushes and syncs the file. Only terminated files can be
	// read.
	Terminate() error
	// Abort discards the file.
	Abort() error
}

type Lock interface {
	Release() error
}

type WatchHandle interface {
	Unwatch()
}

const tmpSuffix = ".tmp"

func isTemp(name string) bool {
	return strings.HasSuffix(name, tmpSuffix)
}
