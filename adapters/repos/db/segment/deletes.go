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
	"io"

	"github.com/pkg/errors"
	"github.com/weaviate/sroar"
	"github.com/weaviate/textindex/adapters/repos/db/directory"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// WriteDeletes persists deleted as the delete bitset of the segment at
// the given commit opstamp and returns the updated meta. deleted must hold
// every deleted doc of the segment, including those deleted earlier.
func WriteDeletes(dir directory.Directory, meta Meta, deleted *sroar.Bitmap, opstamp uint64) (Meta, error) {
	if max := deleted.Maximum(); deleted.GetCardinality() > 0 && max >= uint64(meta.MaxDoc) {
		return Meta{}, errors.Errorf("delete of doc %d in segment %s of %d docs", max, meta.ID, meta.MaxDoc)
	}
	name := DeleteFileName(meta.ID, opstamp)
	err := writeFile(dir, name, func(out io.Writer) error {
		_, err := out.Write(deleted.ToBuffer())
		return err
	})
	if err != nil {
		return Meta{}, errors.Wrapf(err, "write deletes of segment %s", meta.ID)
	}
	return meta.WithDeletes(uint32(deleted.GetCardinality()), opstamp), nil
}

// ReadDeletes loads the delete bitset of meta, an empty bitmap if the
// segment has no deletes.
func ReadDeletes(dir directory.Directory, meta Meta) (bm *sroar.Bitmap, err error) {
	if !meta.HasDeletes() {
		return sroar.NewBitmap(), nil
	}
	name := DeleteFileName(meta.ID, meta.Deletes.Opstamp)
	f, err := dir.OpenRead(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open deletes of segment %s", meta.ID)
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			bm, err = nil, enterrors.NewCorruptedError(name, "decode bitset: %v", r)
		}
	}()
	bm = sroar.FromBufferWithCopy(f.Bytes())
	if card := bm.GetCardinality(); card != int(meta.Deletes.NumDeleted) {
		return nil, enterrors.NewCorruptedError(name, "%d deleted docs, meta says %d", card, meta.Deletes.NumDeleted)
	}
	return bm, nil
}
