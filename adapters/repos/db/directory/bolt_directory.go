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
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	enterrors "github.com/weaviate/textindex/entities/errors"
	bolt "go.etcd.io/bbolt"
)

var filesBucket = []byte("files")

// every value starts with valueMarker so that empty files are stored as
// non empty values
const valueMarker = 1

// BoltDirectory keeps all files of an index as values of a single bbolt
// database file. bbolt holds an exclusive file lock on the database, so
// the index can only be opened by one process at a time.
type BoltDirectory struct {
	path   string
	db     *bolt.DB
	router *watchRouter
	locks  inProcessLocks
}

func OpenBoltDirectory(path string, logger logrus.FieldLogger) (*BoltDirectory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, enterrors.NewIOError("create directory", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, enterrors.NewLockError(path, err)
		}
		return nil, enterrors.NewIOError("open bolt", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, enterrors.NewIOError("create bucket", path, err)
	}
	return &BoltDirectory{path: path, db: db, router: newWatchRouter(logger)}, nil
}

func (d *BoltDirectory) get(op, name string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(filesBucket).Get([]byte(name))
		if v == nil {
			return notFound(op, name)
		}
		if len(v) == 0 || v[0] != valueMarker {
			return enterrors.NewCorruptedError(name, "value without marker")
		}
		// values are only valid within the transaction
		data = append(make([]byte, 0, len(v)-1), v[1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (d *BoltDirectory) put(name string, data []byte, exclusive bool) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if exclusive && b.Get([]byte(name)) != nil {
			return enterrors.NewIOError("create", name, os.ErrExist)
		}
		value := make([]byte, 0, len(data)+1)
		value = append(value, valueMarker)
		return b.Put([]byte(name), append(value, data...))
	})
	if err != nil {
		if errors.Is(err, enterrors.ErrIO) {
			return err
		}
		return enterrors.NewIOError("put", name, err)
	}
	return nil
}

func (d *BoltDirectory) OpenRead(name string) (FileSlice, error) {
	data, err := d.get("open", name)
	if err != nil {
		return FileSlice{}, err
	}
	return NewFileSlice(data), nil
}

func (d *BoltDirectory) OpenWrite(name string) (WritePtr, error) {
	exists, err := d.Exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, enterrors.NewIOError("create", name, os.ErrExist)
	}
	return &bufferWritePtr{
		name: name,
		commit: func(name string, data []byte) error {
			return d.put(name, data, true)
		},
		discard: func(string) {},
	}, nil
}

func (d *BoltDirectory) AtomicRead(name string) ([]byte, error) {
	return d.get("read", name)
}

func (d *BoltDirectory) AtomicWrite(name string, data []byte) error {
	if err := d.put(name, data, false); err != nil {
		return err
	}
	d.router.broadcast(name)
	return nil
}

func (d *BoltDirectory) Delete(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b.Get([]byte(name)) == nil {
			return notFound("remove", name)
		}
		if err := b.Delete([]byte(name)); err != nil {
			return enterrors.NewIOError("remove", name, err)
		}
		return nil
	})
}

func (d *BoltDirectory) Exists(name string) (bool, error) {
	exists := false
	err := d.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(filesBucket).Get([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, enterrors.NewIOError("stat", name, err)
	}
	return exists, nil
}

func (d *BoltDirectory) List() ([]string, error) {
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, enterrors.NewIOError("list", d.path, err)
	}
	return names, nil
}

func (d *BoltDirectory) Watch(name string, cb func()) (WatchHandle, error) {
	return d.router.subscribe(name, cb), nil
}

func (d *BoltDirectory) AcquireLock(name string) (Lock, error) {
	return d.locks.acquire(name)
}

func (d *BoltDirectory) Close() error {
	if err := d.db.Close(); err != nil {
		return enterrors.NewIOError("close bolt", d.path, err)
	}
	return nil
}
