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
	"context"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	"github.com/weaviate/textindex/adapters/repos/db/docstore"
	"github.com/weaviate/textindex/adapters/repos/db/fastfield"
	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/stacker"
	"github.com/weaviate/textindex/adapters/repos/db/termdict"
	"github.com/weaviate/textindex/entities/analysis"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// ctxCheckInterval is the number of terms written between two checks of
// the context.
const ctxCheckInterval = 1024

type WriterOptions struct {
	Codec     compression.Codec
	BlockSize int
}

// Writer builds one segment from documents added one at a time. Doc ids
// are assigned in arrival order. Nothing is visible to readers before
// Finalize returns the segment meta.
//
// A Writer is owned by a single indexing worker and is not safe for
// concurrent use.
type Writer struct {
	dir        directory.Directory
	schema     *schema.Schema
	tokenizers *analysis.Manager
	logger     logrus.FieldLogger

	id          ID
	terms       *stacker.TermTable
	fast        *fastfield.Writer
	norms       *fastfield.FieldNormsWriter
	storeFile   directory.WritePtr
	store       *docstore.Writer
	opstamps    []uint64
	fieldTokens map[schema.FieldID]uint64
	done        bool
}

// NewWriter starts a new segment in dir. The doc store file is created
// right away, the other files on Finalize.
func NewWriter(dir directory.Directory, s *schema.Schema, tokenizers *analysis.Manager,
	opts WriterOptions, logger logrus.FieldLogger,
) (*Writer, error) {
	id := NewID()
	codec := opts.Codec
	if codec == nil {
		var err error
		if codec, err = compression.Get(compression.LZ4); err != nil {
			return nil, err
		}
	}
	storeFile, err := dir.OpenWrite(id.FileName(Store))
	if err != nil {
		return nil, errors.Wrapf(err, "create doc store of segment %s", id)
	}
	return &Writer{
		dir:         dir,
		schema:      s,
		tokenizers:  tokenizers,
		logger:      logger,
		id:          id,
		terms:       stacker.NewTermTable(),
		fast:        fastfield.NewWriter(s),
		norms:       fastfield.NewFieldNormsWriter(s),
		storeFile:   storeFile,
		store:       docstore.NewWriter(storeFile, codec, opts.BlockSize),
		fieldTokens: map[schema.FieldID]uint64{},
	}, nil
}

func (w *Writer) ID() ID {
	return w.id
}

// MaxDoc is the number of docs added so far, which is also the id the next
// doc gets.
func (w *Writer) MaxDoc() uint32 {
	return uint32(len(w.opstamps))
}

// DocOpstamps returns the opstamp of every added doc, indexed by doc id.
func (w *Writer) DocOpstamps() []uint64 {
	return w.opstamps
}

func (w *Writer) MemUsage() int {
	return w.terms.MemUsage() + w.fast.MemUsage() + w.norms.MemUsage() +
		w.store.MemUsage() + cap(w.opstamps)*8
}

// ValidateDocument rejects documents that do not fit s or name a
// tokenizer tokenizers does not know.
func ValidateDocument(s *schema.Schema, tokenizers *analysis.Manager, d *document.Document) error {
	if err := d.Validate(s); err != nil {
		return err
	}
	for _, fv := range d.Values {
		f, _ := s.Field(fv.Field)
		if f.Indexed && f.Type.IsTokenized() {
			if _, ok := tokenizers.Get(f.Tokenizer); !ok {
				return enterrors.NewSchemaError("field %q uses unknown tokenizer %q", f.Name, f.Tokenizer)
			}
		}
	}
	return nil
}

// AddDocument indexes d under the next doc id. A SchemaError leaves the
// writer untouched, any other error leaves it unusable.
func (w *Writer) AddDocument(opstamp uint64, d *document.Document) (uint32, error) {
	if w.done {
		return 0, errors.New("segment writer already finalized")
	}
	if err := ValidateDocument(w.schema, w.tokenizers, d); err != nil {
		return 0, err
	}
	raw, err := document.Marshal(d.Stored(w.schema))
	if err != nil {
		return 0, errors.Wrap(err, "marshal stored fields")
	}

	doc := w.MaxDoc()
	// next position per text field, so the values of a multi valued field
	// do not form phrases across value boundaries
	nextPos := map[schema.FieldID]uint32{}
	numTokens := map[schema.FieldID]uint32{}
	// the same for every path of the json fields
	nextJSONPos := map[string]uint32{}
	for _, fv := range d.Values {
		f, _ := w.schema.Field(fv.Field)
		if !f.Indexed {
			continue
		}
		if f.Type == schema.JSON {
			if err := w.indexJSON(f, doc, fv.Value, nextJSONPos, numTokens); err != nil {
				return 0, errors.Wrapf(err, "index json field %q", f.Name)
			}
			continue
		}
		if f.Type != schema.Text {
			term := fv.Value.Term(f.ID)
			if len(term) > stacker.MaxKeyLen {
				w.skipTerm(f, len(term))
				continue
			}
			w.terms.Subscribe(term, doc, 0, schema.Basic)
			continue
		}

		tokenizer, _ := w.tokenizers.Get(f.Tokenizer)
		record := f.IndexRecord()
		base := nextPos[f.ID]
		end := base
		stream := tokenizer.Tokenize(fv.Value.AsText())
		for stream.Next() {
			tok := stream.Token()
			pos := base + uint32(tok.Position)
			if pos+1 > end {
				end = pos + 1
			}
			numTokens[f.ID]++
			term := schema.TermFromText(f.ID, tok.Text)
			if len(term) > stacker.MaxKeyLen {
				w.skipTerm(f, len(term))
				continue
			}
			w.terms.Subscribe(term, doc, pos, record)
		}
		nextPos[f.ID] = end + 1
	}
	for field, n := range numTokens {
		w.norms.Record(doc, field, n)
		w.fieldTokens[field] += uint64(n)
	}
	w.fast.AddDocument(doc, d)
	if err := w.store.StoreBytes(raw); err != nil {
		return 0, errors.Wrapf(err, "store doc %d", doc)
	}
	w.opstamps = append(w.opstamps, opstamp)
	return doc, nil
}

// indexJSON subscribes every leaf of a json value under its path. Text
// leaves sharing a path continue the positions of the previous one.
func (w *Writer) indexJSON(f schema.Field, doc uint32, v document.Value,
	nextPos map[string]uint32, numTokens map[schema.FieldID]uint32,
) error {
	tokenizer, _ := w.tokenizers.Get(f.Tokenizer)
	record := f.IndexRecord()
	return v.WalkJSON(func(leaf document.JSONLeaf) {
		if leaf.Type != schema.Text {
			term := leaf.Term(f.ID)
			if len(term) > stacker.MaxKeyLen {
				w.skipTerm(f, len(term))
				return
			}
			w.terms.Subscribe(term, doc, 0, record)
			return
		}

		prefix := schema.JSONPathPrefix(f.ID, leaf.Path)
		key := string(prefix)
		base := nextPos[key]
		end := base
		stream := tokenizer.Tokenize(leaf.Text)
		for stream.Next() {
			tok := stream.Token()
			pos := base + uint32(tok.Position)
			if pos+1 > end {
				end = pos + 1
			}
			numTokens[f.ID]++
			term := make(schema.Term, 0, len(prefix)+1+len(tok.Text))
			term = append(append(append(term, prefix...), schema.Text.Code()), tok.Text...)
			if len(term) > stacker.MaxKeyLen {
				w.skipTerm(f, len(term))
				continue
			}
			w.terms.Subscribe(term, doc, pos, record)
		}
		nextPos[key] = end + 1
	})
}

func (w *Writer) skipTerm(f schema.Field, size int) {
	w.logger.WithField("action", "segment_index").
		WithField("field", f.Name).
		WithField("term_size", size).
		Debug("term too long, skipped")
}

// Finalize writes every component of the segment. On error all files of
// the segment are removed again and the writer must be discarded.
func (w *Writer) Finalize(ctx context.Context) (Meta, error) {
	if w.done {
		return Meta{}, errors.New("segment writer already finalized")
	}
	w.done = true
	meta, err := w.finalize(ctx)
	if err != nil {
		if cleanupErr := w.cleanup(); cleanupErr != nil {
			w.logger.WithField("action", "segment_flush").
				WithField("segment", w.id.Short()).
				WithError(cleanupErr).
				Warn("failed to remove files of aborted segment")
		}
		return Meta{}, err
	}
	w.logger.WithField("action", "segment_flush").
		WithField("segment", w.id.Short()).
		WithField("num_docs", meta.MaxDoc).
		WithField("num_terms", w.terms.NumTerms()).
		Debug("flushed segment")
	w.release()
	return meta, nil
}

func (w *Writer) finalize(ctx context.Context) (Meta, error) {
	maxDoc := w.MaxDoc()

	if _, err := w.store.Close(); err != nil {
		return Meta{}, errors.Wrap(err, "close doc store")
	}
	storeFile := w.storeFile
	w.storeFile = nil
	if err := storeFile.Terminate(); err != nil {
		return Meta{}, errors.Wrap(err, "terminate doc store")
	}

	if err := w.serializeTerms(ctx); err != nil {
		return Meta{}, err
	}
	if err := writeFile(w.dir, w.id.FileName(FastFields), func(out io.Writer) error {
		_, err := w.fast.Serialize(out, maxDoc)
		return err
	}); err != nil {
		return Meta{}, errors.Wrap(err, "write fast fields")
	}
	if err := writeFile(w.dir, w.id.FileName(FieldNorms), func(out io.Writer) error {
		_, err := w.norms.Serialize(out, maxDoc)
		return err
	}); err != nil {
		return Meta{}, errors.Wrap(err, "write field norms")
	}

	return Meta{ID: w.id, MaxDoc: maxDoc, FieldTokens: w.fieldTokens}, nil
}

func (w *Writer) serializeTerms(ctx context.Context) error {
	entries := w.terms.SortedTerms()
	builder, err := termdict.NewBuilder(len(entries))
	if err != nil {
		return err
	}

	err = writeFiles(w.dir, []string{w.id.FileName(Postings), w.id.FileName(Positions)},
		func(outs []io.Writer) error {
			s := postings.NewSerializer(outs[0], outs[1])
			var p stacker.Postings
			for i, entry := range entries {
				if i%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				term := schema.Term(entry.Term)
				f, ok := w.schema.Field(term.Field())
				if !ok {
					return errors.Errorf("term %s of unknown field", term)
				}
				if err := w.terms.ReadPostings(entry, &p); err != nil {
					return err
				}
				s.NewTerm(f.IndexRecord())
				var posStart uint32
				for j, doc := range p.Docs {
					tf := p.Freqs[j]
					var positions []uint32
					if f.IndexRecord().HasPositions() {
						positions = p.Positions[posStart : posStart+tf]
						posStart += tf
					}
					s.WriteDoc(doc, tf, positions, w.norms.Norm(f.ID, doc))
				}
				info, err := s.CloseTerm()
				if err != nil {
					return errors.Wrapf(err, "serialize postings of %s", term)
				}
				if err := builder.Insert(entry.Term, info); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return errors.Wrap(err, "write postings")
	}

	return errors.Wrap(writeFile(w.dir, w.id.FileName(Terms), func(out io.Writer) error {
		_, err := builder.Finish(out)
		return err
	}), "write term dictionary")
}

// Abort discards everything added so far and removes the files already
// created.
func (w *Writer) Abort() error {
	w.done = true
	err := w.cleanup()
	w.release()
	return err
}

func (w *Writer) cleanup() error {
	var result *multierror.Error
	if w.storeFile != nil {
		if err := w.storeFile.Abort(); err != nil {
			result = multierror.Append(result, err)
		}
		w.storeFile = nil
	}
	result = multierror.Append(result, removeFiles(w.dir, Meta{ID: w.id}))
	return result.ErrorOrNil()
}

func (w *Writer) release() {
	w.terms.Reset()
	w.fast.Reset()
	w.norms.Reset()
}

// writeFile creates name, fills it through fn and makes it durable. On
// error the file is discarded.
func writeFile(dir directory.Directory, name string, fn func(out io.Writer) error) error {
	return writeFiles(dir, []string{name}, func(outs []io.Writer) error {
		return fn(outs[0])
	})
}

func writeFiles(dir directory.Directory, names []string, fn func(outs []io.Writer) error) error {
	ptrs := make([]directory.WritePtr, 0, len(names))
	outs := make([]io.Writer, 0, len(names))
	abort := func() {
		for _, p := range ptrs {
			p.Abort()
		}
	}
	for _, name := range names {
		p, err := dir.OpenWrite(name)
		if err != nil {
			abort()
			return errors.Wrapf(err, "create %s", name)
		}
		ptrs = append(ptrs, p)
		outs = append(outs, p)
	}
	if err := fn(outs); err != nil {
		abort()
		return err
	}
	for i, p := range ptrs {
		if err := p.Terminate(); err != nil {
			for _, rest := range ptrs[i+1:] {
				rest.Abort()
			}
			return errors.Wrapf(err, "terminate %s", names[i])
		}
	}
	return nil
}

// removeFiles deletes every file of the segment described by meta,
// ignoring files that do not exist.
func removeFiles(dir directory.Directory, meta Meta) error {
	var result *multierror.Error
	for _, name := range meta.Files() {
		if err := dir.Delete(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, errors.Wrapf(err, "delete %s", name))
		}
	}
	return result.ErrorOrNil()
}
