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
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// ManagedFileName lists every file created through a ManagedDirectory.
const ManagedFileName = ".managed.json"

// ManagedDirectory keeps track of the files it creates so that files
// which are no longer referenced can be garbage collected, and adds a
// checksum footer to each of them.
type ManagedDirectory struct {
	Directory

	logger logrus.FieldLogger
	verify bool

	lock    sync.Mutex
	managed map[string]struct{}
}

// NewManagedDirectory loads the list of managed files of d. If verify is
// set, the checksum of every file is checked when it is opened.
func NewManagedDirectory(d Directory, verify bool, logger logrus.FieldLogger) (*ManagedDirectory, error) {
	m := &ManagedDirectory{
		Directory: d,
		logger:    logger,
		verify:    verify,
		managed:   map[string]struct{}{},
	}
	data, err := d.AtomicRead(ManagedFileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, enterrors.NewCorruptedError(ManagedFileName, "%v", err)
	}
	for _, name := range names {
		m.managed[name] = struct{}{}
	}
	return m, nil
}

// persist must be called with the lock held.
func (m *ManagedDirectory) persist() error {
	names := make([]string, 0, len(m.managed))
	for name := range m.managed {
		names = append(names, name)
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return errors.Wrap(err, "marshal managed files")
	}
	return m.Directory.AtomicWrite(ManagedFileName, data)
}

// OpenWrite registers name before creating it, so that a crash never
// leaves an untracked file behind.
func (m *ManagedDirectory) OpenWrite(name string) (WritePtr, error) {
	m.lock.Lock()
	if _, ok := m.managed[name]; !ok {
		m.managed[name] = struct{}{}
		if err := m.persist(); err != nil {
			delete(m.managed, name)
			m.lock.Unlock()
			return nil, err
		}
	}
	m.lock.Unlock()

	w, err := m.Directory.OpenWrite(name)
	if err != nil {
		return nil, err
	}
	return withFooter(w), nil
}

// OpenRead returns the body of name without its footer.
func (m *ManagedDirectory) OpenRead(name string) (FileSlice, error) {
	f, err := m.Directory.OpenRead(name)
	if err != nil {
		return FileSlice{}, err
	}
	body, err := splitFooter(name, f.Bytes(), m.verify)
	if err != nil {
		f.Close()
		return FileSlice{}, err
	}
	return FileSlice{contents: body, release: f.release}, nil
}

func (m *ManagedDirectory) Delete(name string) error {
	err := m.Directory.Delete(name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.managed[name]; !ok {
		return nil
	}
	delete(m.managed, name)
	return m.persist()
}

func (m *ManagedDirectory) Managed() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	names := make([]string, 0, len(m.managed))
	for name := range m.managed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GarbageCollect deletes every managed file for which living returns
// false. Files that cannot be deleted are kept for a later attempt.
func (m *ManagedDirectory) GarbageCollect(living func(name string) bool) ([]string, error) {
	var deleted []string
	var result *multierror.Error
	for _, name := range m.Managed() {
		if living(name) {
			continue
		}
		if err := m.Delete(name); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "delete %s", name))
			continue
		}
		deleted = append(deleted, name)
	}

	log := m.logger.WithField("action", "gc").WithField("deleted", len(deleted))
	if err := result.ErrorOrNil(); err != nil {
		log.WithError(err).Warn("garbage collection left files behind")
		return deleted, err
	}
	if len(deleted) > 0 {
		log.Debug("deleted unreferenced files")
	}
	return deleted, nil
}
