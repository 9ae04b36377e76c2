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
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// MetaFileName is the file every commit replaces atomically.
const MetaFileName = "meta.json"

const metaVersion = 1

// IndexMeta is the committed state of an index: the live segments, the
// opstamp of the commit and the schema.
type IndexMeta struct {
	Segments []segment.Meta `json:"segments"`
	Opstamp  uint64         `json:"opstamp"`
	Schema   *schema.Schema `json:"schema"`
	// Payload is an optional message attached to the commit.
	Payload string `json:"payload,omitempty"`
}

type metaEnvelope struct {
	Version  int             `json:"version"`
	Checksum uint64          `json:"checksum"`
	Meta     json.RawMessage `json:"meta"`
}

func (m IndexMeta) NumDocs() uint64 {
	var n uint64
	for _, s := range m.Segments {
		n += uint64(s.NumDocs())
	}
	return n
}

func (m IndexMeta) Segment(id segment.ID) (segment.Meta, bool) {
	for _, s := range m.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return segment.Meta{}, false
}

// Files returns every file the committed segments consist of.
func (m IndexMeta) Files() map[string]struct{} {
	files := map[string]struct{}{}
	for _, s := range m.Segments {
		for _, f := range s.Files() {
			files[f] = struct{}{}
		}
	}
	return files
}

func (m IndexMeta) withSegments(segments []segment.Meta) IndexMeta {
	m.Segments = segments
	return m
}

// WriteMeta replaces the meta file of dir. The previous meta stays valid
// until the new one is durable.
func WriteMeta(dir directory.Directory, meta IndexMeta) error {
	if meta.Schema == nil {
		return errors.New("index meta without schema")
	}
	if meta.Segments == nil {
		meta.Segments = []segment.Meta{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshal index meta")
	}
	data, err := json.Marshal(metaEnvelope{
		Version:  metaVersion,
		Checksum: xxhash.Sum64(raw),
		Meta:     raw,
	})
	if err != nil {
		return errors.Wrap(err, "marshal index meta envelope")
	}
	if err := dir.AtomicWrite(MetaFileName, data); err != nil {
		return errors.Wrapf(err, "write %s", MetaFileName)
	}
	return nil
}

// ReadMeta loads the last committed meta of dir. If the index has never
// been committed the error matches os.ErrNotExist.
func ReadMeta(dir directory.Directory) (IndexMeta, error) {
	data, err := dir.AtomicRead(MetaFileName)
	if err != nil {
		return IndexMeta{}, errors.Wrapf(err, "read %s", MetaFileName)
	}

	var env metaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return IndexMeta{}, enterrors.NewCorruptedError(MetaFileName, "decode envelope: %v", err)
	}
	if env.Version != metaVersion {
		return IndexMeta{}, enterrors.NewCorruptedError(MetaFileName, "unsupported version %d", env.Version)
	}
	if sum := xxhash.Sum64(env.Meta); sum != env.Checksum {
		return IndexMeta{}, enterrors.NewCorruptedError(MetaFileName,
			"checksum mismatch: got %x, want %x", sum, env.Checksum)
	}

	var meta IndexMeta
	if err := json.Unmarshal(env.Meta, &meta); err != nil {
		return IndexMeta{}, enterrors.NewCorruptedError(MetaFileName, "decode meta: %v", err)
	}
	if meta.Schema == nil {
		return IndexMeta{}, enterrors.NewCorruptedError(MetaFileName, "meta has no schema")
	}
	return meta, nil
}

// MetaExists reports whether dir holds a committed index.
func MetaExists(dir directory.Directory) (bool, error) {
	return dir.Exists(MetaFileName)
}
