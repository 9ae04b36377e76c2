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
	"fmt"
)

// Error kinds surfaced by the index. Callers classify any returned error
// with errors.Is against one of these sentinels.
var (
	ErrSchema           = errors.New("schema error")
	ErrIO               = errors.New("io error")
	ErrCorruptedData    = errors.New("corrupted data")
	ErrLock             = errors.New("lock error")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	ErrClosed           = errors.New("index writer closed")
)

// Error carries the kind of a failure together with the operation and the
// path (if any) it happened on.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func NewSchemaError(format string, args ...interface{}) error {
	return &Error{Kind: ErrSchema, Err: fmt.Errorf(format, args...)}
}

func NewIOError(op, path string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Path: path, Err: err}
}

// NewCorruptedError reports a checksum or format mismatch found while
// decoding path.
func NewCorruptedError(path string, format string, args ...interface{}) error {
	return &Error{Kind: ErrCorruptedData, Path: path, Err: fmt.Errorf(format, args...)}
}

func NewLockError(path string, err error) error {
	return &Error{Kind: ErrLock, Op: "acquire lock", Path: path, Err: err}
}

// NewClosedError is returned by operations on a closed index writer. err
// is the failure that closed it, nil after an explicit close.
func NewClosedError(err error) error {
	return &Error{Kind: ErrClosed, Err: err}
}

func NewDeadlineError(err error) error {
	return &Error{Kind: ErrDeadlineExceeded, Err: err}
}

// IsCorrupted is a shorthand for errors.Is(err, ErrCorruptedData).
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorruptedData)
}
