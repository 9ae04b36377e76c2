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

package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// ID identifies a segment for its whole life, merges create new ids.
type ID uuid.UUID

func NewID() ID {
	return ID(uuid.New())
}

func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, errors.Wrapf(err, "parse segment id %q", s)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return strings.ReplaceAll(uuid.UUID(id).String(), "-", "")
}

// Short is enough to tell segments apart in logs.
func (id ID) Short() string {
	return id.String()[:8]
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Component is one of the files making up a segment.
type Component uint8

const (
	Terms Component = iota
	Postings
	Positions
	FastFields
	FieldNorms
	Store
)

var Components = []Component{Terms, Postings, Positions, FastFields, FieldNorms, Store}

func (c Component) String() string {
	switch c {
	case Terms:
		return "term"
	case Postings:
		return "idx"
	case Positions:
		return "pos"
	case FastFields:
		return "fast"
	case FieldNorms:
		return "fieldnorm"
	case Store:
		return "store"
	default:
		return fmt.Sprintf("component(%d)", uint8(c))
	}
}

func (id ID) FileName(c Component) string {
	return id.String() + "." + c.String()
}

// DeleteFileName names the delete bitset of a segment written by the
// commit with the given opstamp. Every commit that adds deletes writes a
// new file, open readers keep the old one.
func DeleteFileName(id ID, opstamp uint64) string {
	return fmt.Sprintf("%s.%d.del", id, opstamp)
}

type DeleteMeta struct {
	NumDeleted uint32 `json:"num_deleted"`
	Opstamp    uint64 `json:"opstamp"`
}

// Meta describes a published segment. Metas are values, updating the
// deletes of a segment produces a new Meta.
type Meta struct {
	ID     ID     `json:"id"`
	MaxDoc uint32 `json:"max_doc"`
	// FieldTokens holds the number of tokens indexed per text field, the
	// average field length used for scoring derives from it.
	FieldTokens map[schema.FieldID]uint64 `json:"field_tokens,omitempty"`
	Deletes     *DeleteMeta               `json:"deletes,omitempty"`
}

func (m Meta) NumDeleted() uint32 {
	if m.Deletes == nil {
		return 0
	}
	return m.Deletes.NumDeleted
}

// NumDocs counts the alive docs.
func (m Meta) NumDocs() uint32 {
	return m.MaxDoc - m.NumDeleted()
}

func (m Meta) HasDeletes() bool {
	return m.NumDeleted() > 0
}

// DeleteOpstamp is the opstamp of the commit that wrote the current
// delete bitset, 0 without deletes.
func (m Meta) DeleteOpstamp() uint64 {
	if m.Deletes == nil {
		return 0
	}
	return m.Deletes.Opstamp
}

func (m Meta) WithDeletes(numDeleted uint32, opstamp uint64) Meta {
	m.Deletes = &DeleteMeta{NumDeleted: numDeleted, Opstamp: opstamp}
	return m
}

// Files lists every file the segment is made of.
func (m Meta) Files() []string {
	files := make([]string, 0, len(Components)+1)
	for _, c := range Components {
		files = append(files, m.ID.FileName(c))
	}
	if m.HasDeletes() {
		files = append(files, DeleteFileName(m.ID, m.Deletes.Opstamp))
	}
	return files
}

func (m Meta) String() string {
	if m.HasDeletes() {
		return fmt.Sprintf("%s(%d docs, %d deleted)", m.ID.Short(), m.MaxDoc, m.NumDeleted())
	}
	return fmt.Sprintf("%s(%d docs)", m.ID.Short(), m.MaxDoc)
}

// SortByID orders metas deterministically.
func SortByID(metas []Meta) {
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ID.String() < metas[j].ID.String()
	})
}
