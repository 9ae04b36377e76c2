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
	"github.com/pkg/errors"

	"github.com/weaviate/textindex/adapters/repos/db/postings"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/entities/schema"
)

// applyDeletes applies ops to the segment of r and writes its new delete
// bitset under the commit opstamp. opstamps holds the add opstamp of
// every doc of a segment flushed since the last commit. It is nil for
// committed segments, whose docs are all older than any queued delete.
//
// The returned reader is r itself if no doc was deleted. drop is set when
// no doc of the segment is left, in which case nothing is written.
func (w *IndexWriter) applyDeletes(r *segment.Reader, opstamps []uint64, ops []DeleteOperation,
	commitOpstamp uint64,
) (next *segment.Reader, drop bool, err error) {
	if len(ops) == 0 {
		return r, false, nil
	}

	deleted := r.Deletes().Clone()
	before := deleted.GetCardinality()
	for _, op := range ops {
		if err := deleteMatching(r, op, opstamps, func(doc uint32) {
			deleted.Set(uint64(doc))
		}); err != nil {
			return nil, false, err
		}
	}

	card := deleted.GetCardinality()
	if card == before {
		return r, false, nil
	}
	if card == int(r.MaxDoc()) {
		w.logger.WithField("action", "apply_deletes").
			WithField("segment", r.ID().Short()).
			Debug("every doc of the segment is deleted, dropping it")
		return r, true, nil
	}

	meta, err := segment.WriteDeletes(w.dir, r.Meta(), deleted, commitOpstamp)
	if err != nil {
		return nil, false, err
	}
	next, err = r.WithDeletes(w.dir, meta)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reopen segment %s", meta.ID)
	}

	w.logger.WithField("action", "apply_deletes").
		WithField("segment", meta.ID.Short()).
		WithField("opstamp", commitOpstamp).
		WithField("deleted", card-before).
		Debug("applied deletes")
	return next, false, nil
}

// deleteMatching calls fn for every doc of r that holds the term of op and
// was added before it.
func deleteMatching(r *segment.Reader, op DeleteOperation, opstamps []uint64, fn func(doc uint32)) error {
	p, ok, err := r.Postings(op.Term, schema.Basic)
	if err != nil {
		return errors.Wrapf(err, "read postings of %s", op.Term)
	}
	if !ok {
		return nil
	}
	for doc := p.Doc(); doc != postings.Terminated; doc = p.Advance() {
		if opstamps != nil && opstamps[doc] > op.Opstamp {
			continue
		}
		fn(doc)
	}
	return p.Err()
}
