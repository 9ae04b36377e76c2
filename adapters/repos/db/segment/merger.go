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
	"bytes"
	"container/heap"
	"context"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/docstore"
	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/termdict"
	"github.com/weaviate/textindex/entities/schema"
)

// dropped marks a deleted doc in a doc map.
const dropped = math.MaxUint32

// Merger combines several segments into a new one. Docs are renumbered in
// the order of the inputs, deleted docs are dropped. The inputs are only
// read, a failed merge leaves them as they were.
type Merger struct {
	dir     directory.Directory
	schema  *schema.Schema
	readers []*Reader
	opts    WriterOptions
	logger  logrus.FieldLogger

	id      ID
	docMaps [][]uint32
	maxDoc  uint32
}

func NewMerger(dir directory.Directory, s *schema.Schema, readers []*Reader,
	opts WriterOptions, logger logrus.FieldLogger,
) *Merger {
	m := &Merger{
		dir:     dir,
		schema:  s,
		readers: readers,
		opts:    opts,
		logger:  logger,
		id:      NewID(),
		docMaps: make([][]uint32, len(readers)),
	}
	for i, r := range readers {
		docMap := make([]uint32, r.MaxDoc())
		for doc := range docMap {
			if r.IsDeleted(uint32(doc)) {
				docMap[doc] = dropped
				continue
			}
			docMap[doc] = m.maxDoc
			m.maxDoc++
		}
		m.docMaps[i] = docMap
	}
	return m
}

// MaxDoc is the number of docs of the merged segment.
func (m *Merger) MaxDoc() uint32 {
	return m.maxDoc
}

// ID is the id the merged segment is written under.
func (m *Merger) ID() ID {
	return m.id
}

// NewDocID maps doc of the input-th reader to its id in the merged
// segment. Docs deleted when the merger was created have no new id.
func (m *Merger) NewDocID(input int, doc uint32) (uint32, bool) {
	docMap := m.docMaps[input]
	if doc >= uint32(len(docMap)) || docMap[doc] == dropped {
		return 0, false
	}
	return docMap[doc], true
}

// Merge writes the merged segment. Cancelling ctx aborts the merge
// between two terms or two store blocks, every file written so far is
// removed again.
func (m *Merger) Merge(ctx context.Context) (Meta, error) {
	meta, err := m.merge(ctx)
	if err != nil {
		if cleanupErr := removeFiles(m.dir, Meta{ID: m.id}); cleanupErr != nil {
			m.logger.WithField("action", "merge").
				WithField("segment", m.id.Short()).
				WithError(cleanupErr).
				Warn("failed to remove files of aborted merge")
		}
		return Meta{}, err
	}
	return meta, nil
}

func (m *Merger) merge(ctx context.Context) (Meta, error) {
	norms, fieldTokens := m.mergeFieldNorms()

	if err := m.mergeStore(ctx); err != nil {
		return Meta{}, errors.Wrap(err, "merge doc stores")
	}
	if err := m.mergeTerms(ctx, norms); err != nil {
		return Meta{}, errors.Wrap(err, "merge terms")
	}
	if err := writeFile(m.dir, m.id.FileName(FastFields), func(out io.Writer) error {
		_, err := m.mergeFastFields().Serialize(out, m.maxDoc)
		return err
	}); err != nil {
		return Meta{}, errors.Wrap(err, "merge fast fields")
	}
	if err := writeFile(m.dir, m.id.FileName(FieldNorms), func(out io.Writer) error {
		_, err := norms.Serialize(out, m.maxDoc)
		return err
	}); err != nil {
		return Meta{}, errors.Wrap(err, "merge field norms")
	}
	return Meta{ID: m.id, MaxDoc: m.maxDoc, FieldTokens: fieldTokens}, nil
}

func (m *Merger) mergeFieldNorms() (*fastfield.FieldNormsWriter, map[schema.FieldID]uint64) {
	w := fastfield.NewFieldNormsWriter(m.schema)
	tokens := map[schema.FieldID]uint64{}
	for _, f := range m.schema.Fields() {
		if !f.HasFieldNorms() {
			continue
		}
		for i, r := range m.readers {
			for old, doc := range m.docMaps[i] {
				if doc == dropped {
					continue
				}
				norm := r.FieldNorms().Get(f.ID, uint32(old))
				w.Record(doc, f.ID, norm)
				tokens[f.ID] += uint64(norm)
			}
		}
	}
	return w, tokens
}

func (m *Merger) mergeFastFields() *fastfield.Writer {
	w := fastfield.NewWriter(m.schema)
	var nums []uint64
	var raw [][]byte
	for _, f := range m.schema.Fields() {
		if !f.Fast {
			continue
		}
		numeric, isNumeric := w.Numeric(f.ID)
		bytesCol, _ := w.Bytes(f.ID)
		for i, r := range m.readers {
			var col *fastfield.Column
			var bcol *fastfield.BytesColumn
			if isNumeric {
				col, _ = r.FastFields().Column(f.ID)
			} else {
				bcol, _ = r.FastFields().Bytes(f.ID)
			}
			for old, doc := range m.docMaps[i] {
				if doc == dropped {
					continue
				}
				switch {
				case col != nil:
					nums = col.Values(uint32(old), nums)
					for _, v := range nums {
						numeric.Add(doc, v)
					}
				case bcol != nil:
					raw = bcol.Values(uint32(old), raw)
					for _, v := range raw {
						bytesCol.Add(doc, v)
					}
				}
			}
		}
	}
	return w
}

func (m *Merger) codec() (compression.Codec, error) {
	if m.opts.Codec != nil {
		return m.opts.Codec, nil
	}
	return compression.Get(compression.LZ4)
}

func (m *Merger) mergeStore(ctx context.Context) error {
	codec, err := m.codec()
	if err != nil {
		return err
	}
	return writeFile(m.dir, m.id.FileName(Store), func(out io.Writer) error {
		w := docstore.NewWriter(out, codec, m.opts.BlockSize)
		for i, r := range m.readers {
			if err := ctx.Err(); err != nil {
				return err
			}
			store := r.Store()
			if !r.HasDeletes() && store.Codec().Name() == codec.Name() {
				if err := w.Stack(store); err != nil {
					return err
				}
				continue
			}
			docMap := m.docMaps[i]
			err := store.Iter(func(doc uint32, raw []byte) error {
				if doc%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if docMap[doc] == dropped {
					return nil
				}
				return w.StoreBytes(raw)
			})
			if err != nil {
				return err
			}
		}
		if w.NumDocs() != m.maxDoc {
			return errors.Errorf("merged doc store holds %d docs, expected %d", w.NumDocs(), m.maxDoc)
		}
		_, err := w.Close()
		return err
	})
}

// termCursor is the term stream of one input.
type termCursor struct {
	input  int
	stream *termdict.Stream
}

// termHeap orders cursors by their current term, ties by input order.
type termHeap []*termCursor

func (h termHeap) Len() int { return len(h) }

func (h termHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].stream.Key(), h[j].stream.Key()); c != 0 {
		return c < 0
	}
	return h[i].input < h[j].input
}

func (h termHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *termHeap) Push(x any) {
	*h = append(*h, x.(*termCursor))
}

func (h *termHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// termSource is one input holding the current term.
type termSource struct {
	input int
	info  postings.TermInfo
}

// mergedPostings buffers the remapped postings of one term.
type mergedPostings struct {
	docs      []uint32
	tfs       []uint32
	norms     []uint32
	positions []uint32
	posStarts []int
	scratch   []uint32
}

func (p *mergedPostings) reset() {
	p.docs = p.docs[:0]
	p.tfs = p.tfs[:0]
	p.norms = p.norms[:0]
	p.positions = p.positions[:0]
	p.posStarts = p.posStarts[:0]
}

func (m *Merger) mergeTerms(ctx context.Context, norms *fastfield.FieldNormsWriter) error {
	h := &termHeap{}
	var expected int
	for i, r := range m.readers {
		expected += int(r.Dictionary().NumTerms())
		c := &termCursor{input: i, stream: r.Dictionary().Stream()}
		if c.stream.Next() {
			heap.Push(h, c)
		} else if err := c.stream.Err(); err != nil {
			return err
		}
	}
	builder, err := termdict.NewBuilder(expected)
	if err != nil {
		return err
	}

	err = writeFiles(m.dir, []string{m.id.FileName(Postings), m.id.FileName(Positions)},
		func(outs []io.Writer) error {
			s := postings.NewSerializer(outs[0], outs[1])
			var (
				term    []byte
				sources []termSource
				buf     mergedPostings
				n       int
			)
			for h.Len() > 0 {
				if n%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				n++

				term = append(term[:0], (*h)[0].stream.Key()...)
				sources = sources[:0]
				for h.Len() > 0 && bytes.Equal((*h)[0].stream.Key(), term) {
					c := (*h)[0]
					sources = append(sources, termSource{input: c.input, info: c.stream.TermInfo()})
					if c.stream.Next() {
						heap.Fix(h, 0)
					} else {
						if err := c.stream.Err(); err != nil {
							return err
						}
						heap.Pop(h)
					}
				}

				info, ok, err := m.mergeTerm(s, schema.Term(term), sources, norms, &buf)
				if err != nil {
					return errors.Wrapf(err, "merge term %s", schema.Term(term))
				}
				if !ok {
					continue
				}
				if err := builder.Insert(term, info); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}
	return errors.Wrap(writeFile(m.dir, m.id.FileName(Terms), func(out io.Writer) error {
		_, err := builder.Finish(out)
		return err
	}), "write term dictionary")
}

// mergeTerm writes the remapped postings of term. ok is false if every doc
// holding the term was deleted, the term is then left out.
func (m *Merger) mergeTerm(s *postings.Serializer, term schema.Term, sources []termSource,
	norms *fastfield.FieldNormsWriter, buf *mergedPostings,
) (postings.TermInfo, bool, error) {
	f, ok := m.schema.Field(term.Field())
	if !ok {
		return postings.TermInfo{}, false, errors.Errorf("unknown field %d", term.Field())
	}
	record := f.IndexRecord()
	buf.reset()

	for _, src := range sources {
		p, err := m.readers[src.input].PostingsFromInfo(f.ID, src.info, record)
		if err != nil {
			return postings.TermInfo{}, false, err
		}
		docMap := m.docMaps[src.input]
		for doc := p.Doc(); doc != postings.Terminated; doc = p.Advance() {
			newDoc := docMap[doc]
			if newDoc == dropped {
				continue
			}
			buf.docs = append(buf.docs, newDoc)
			buf.tfs = append(buf.tfs, p.TermFreq())
			buf.norms = append(buf.norms, norms.Norm(f.ID, newDoc))
			if record.HasPositions() {
				buf.posStarts = append(buf.posStarts, len(buf.positions))
				buf.scratch = p.Positions(buf.scratch)
				buf.positions = append(buf.positions, buf.scratch...)
			}
		}
		if err := p.Err(); err != nil {
			return postings.TermInfo{}, false, err
		}
	}
	if len(buf.docs) == 0 {
		return postings.TermInfo{}, false, nil
	}

	s.NewTerm(record)
	for i, doc := range buf.docs {
		var positions []uint32
		if record.HasPositions() {
			start := buf.posStarts[i]
			positions = buf.positions[start : start+int(buf.tfs[i])]
		}
		s.WriteDoc(doc, buf.tfs[i], positions, buf.norms[i])
	}
	info, err := s.CloseTerm()
	return info, err == nil, err
}
