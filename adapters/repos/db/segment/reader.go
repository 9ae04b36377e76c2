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
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/docstore"
	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/termdict"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

type ReaderOptions struct {
	// CacheBlocks is the number of decompressed doc store blocks kept.
	CacheBlocks  int
	CacheMetrics docstore.CacheMetrics
}

// core holds the immutable files of a segment. It is shared by all readers
// of the segment, whatever their delete bitset.
type core struct {
	schema    *schema.Schema
	files     []directory.FileSlice
	dict      *termdict.Dictionary
	postings  []byte
	positions []byte
	fast      *fastfield.Readers
	norms     *fastfield.FieldNorms
	store     *docstore.Reader
	refs      atomic.Int32
}

func openCore(dir directory.Directory, s *schema.Schema, id ID, opts ReaderOptions) (_ *core, err error) {
	c := &core{schema: s}
	defer func() {
		if err != nil {
			c.close()
		}
	}()
	data := map[Component][]byte{}
	for _, comp := range Components {
		f, err := dir.OpenRead(id.FileName(comp))
		if err != nil {
			return nil, errors.Wrapf(err, "open %s of segment %s", comp, id)
		}
		c.files = append(c.files, f)
		data[comp] = f.Bytes()
	}

	if c.dict, err = termdict.Open(data[Terms]); err != nil {
		return nil, errors.Wrapf(err, "segment %s", id)
	}
	c.postings = data[Postings]
	c.positions = data[Positions]
	if c.fast, err = fastfield.OpenReaders(data[FastFields], s); err != nil {
		return nil, errors.Wrapf(err, "segment %s", id)
	}
	if c.norms, err = fastfield.OpenFieldNorms(data[FieldNorms]); err != nil {
		return nil, errors.Wrapf(err, "segment %s", id)
	}
	if c.store, err = docstore.Open(data[Store], opts.CacheBlocks, opts.CacheMetrics); err != nil {
		return nil, errors.Wrapf(err, "segment %s", id)
	}
	c.refs.Store(1)
	return c, nil
}

func (c *core) close() error {
	var result *multierror.Error
	if c.dict != nil {
		if err := c.dict.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, f := range c.files {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.files = nil
	return result.ErrorOrNil()
}

func (c *core) decRef() error {
	if c.refs.Add(-1) == 0 {
		return c.close()
	}
	return nil
}

// Reader gives read access to one segment at one delete generation. It is
// safe for concurrent use. Readers are reference counted: the creator holds
// the first reference, every additional holder takes one with IncRef, and
// the files are released when the last reference is dropped.
type Reader struct {
	meta    Meta
	core    *core
	deletes *sroar.Bitmap
	refs    atomic.Int32
}

// Open opens the segment described by meta, including its deletes.
func Open(dir directory.Directory, s *schema.Schema, meta Meta, opts ReaderOptions) (*Reader, error) {
	deletes, err := ReadDeletes(dir, meta)
	if err != nil {
		return nil, err
	}
	c, err := openCore(dir, s, meta.ID, opts)
	if err != nil {
		return nil, err
	}
	if c.store.NumDocs() != meta.MaxDoc {
		c.close()
		return nil, errors.Errorf("segment %s: doc store holds %d docs, meta says %d",
			meta.ID, c.store.NumDocs(), meta.MaxDoc)
	}
	return newReader(meta, c, deletes), nil
}

func newReader(meta Meta, c *core, deletes *sroar.Bitmap) *Reader {
	r := &Reader{meta: meta, core: c, deletes: deletes}
	r.refs.Store(1)
	return r
}

// WithDeletes opens the same segment at the delete generation of meta,
// sharing the files of r.
func (r *Reader) WithDeletes(dir directory.Directory, meta Meta) (*Reader, error) {
	if meta.ID != r.meta.ID {
		return nil, errors.Errorf("cannot reopen segment %s as %s", r.meta.ID, meta.ID)
	}
	deletes, err := ReadDeletes(dir, meta)
	if err != nil {
		return nil, err
	}
	r.core.refs.Add(1)
	return newReader(meta, r.core, deletes), nil
}

func (r *Reader) IncRef() {
	r.refs.Add(1)
}

// DecRef drops one reference. The last one closes the reader.
func (r *Reader) DecRef() error {
	n := r.refs.Add(-1)
	if n < 0 {
		return errors.Errorf("segment %s released more often than acquired", r.meta.ID)
	}
	if n == 0 {
		return r.core.decRef()
	}
	return nil
}

func (r *Reader) RefCount() int32 {
	return r.refs.Load()
}

func (r *Reader) Meta() Meta {
	return r.meta
}

func (r *Reader) ID() ID {
	return r.meta.ID
}

func (r *Reader) Schema() *schema.Schema {
	return r.core.schema
}

func (r *Reader) MaxDoc() uint32 {
	return r.meta.MaxDoc
}

func (r *Reader) NumDocs() uint32 {
	return r.meta.NumDocs()
}

func (r *Reader) HasDeletes() bool {
	return r.meta.HasDeletes()
}

func (r *Reader) IsDeleted(doc uint32) bool {
	return r.meta.HasDeletes() && r.deletes.Contains(uint64(doc))
}

// Deletes is the delete bitset of the reader. It must not be modified.
func (r *Reader) Deletes() *sroar.Bitmap {
	return r.deletes
}

func (r *Reader) Dictionary() *termdict.Dictionary {
	return r.core.dict
}

func (r *Reader) FastFields() *fastfield.Readers {
	return r.core.fast
}

func (r *Reader) FieldNorms() *fastfield.FieldNorms {
	return r.core.norms
}

// FieldTokens is the number of tokens indexed in field, deleted docs
// included.
func (r *Reader) FieldTokens(field schema.FieldID) uint64 {
	return r.meta.FieldTokens[field]
}

func (r *Reader) Store() *docstore.Reader {
	return r.core.store
}

func (r *Reader) Doc(doc uint32) (*document.Document, error) {
	if doc >= r.meta.MaxDoc {
		return nil, errors.Errorf("doc %d out of range of segment %s", doc, r.meta.ID)
	}
	return r.core.store.Get(doc)
}

func (r *Reader) TermInfo(term schema.Term) (postings.TermInfo, bool, error) {
	return r.core.dict.Get(term)
}

// DocFreq counts the docs containing term, deleted docs included.
func (r *Reader) DocFreq(term schema.Term) (uint32, error) {
	info, ok, err := r.core.dict.Get(term)
	if err != nil || !ok {
		return 0, err
	}
	return info.DocFreq, nil
}

// Postings opens a cursor over the postings of term. Positions are only
// decoded if record asks for them and the field recorded them. ok is false
// if the term does not occur in the segment.
func (r *Reader) Postings(term schema.Term, record schema.IndexRecordOption) (*postings.SegmentPostings, bool, error) {
	info, ok, err := r.core.dict.Get(term)
	if err != nil || !ok {
		return nil, false, err
	}
	p, err := r.PostingsFromInfo(term.Field(), info, record)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (r *Reader) PostingsFromInfo(field schema.FieldID, info postings.TermInfo,
	record schema.IndexRecordOption,
) (*postings.SegmentPostings, error) {
	f, ok := r.core.schema.Field(field)
	if !ok {
		return nil, errors.Errorf("unknown field %d", field)
	}
	end := info.PostingsOffset + uint64(info.PostingsLen)
	if end > uint64(len(r.core.postings)) {
		return nil, postingsOutOfBounds(r.meta.ID, end, len(r.core.postings))
	}
	data := r.core.postings[info.PostingsOffset:end]

	var positions []byte
	stored := f.IndexRecord()
	if stored.HasPositions() && record.HasPositions() && info.PositionsLen > 0 {
		end := info.PositionsOffset + uint64(info.PositionsLen)
		if end > uint64(len(r.core.positions)) {
			return nil, postingsOutOfBounds(r.meta.ID, end, len(r.core.positions))
		}
		positions = r.core.positions[info.PositionsOffset:end]
	}
	return postings.Open(data, positions, info, stored)
}

func postingsOutOfBounds(id ID, end uint64, size int) error {
	return enterrors.NewCorruptedError(id.String(), "postings range ends at %d, file holds %d bytes", end, size)
}
