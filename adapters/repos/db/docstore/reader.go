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

package docstore

import (
	"bytes"
	"encoding/binary"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/weaviate/textindex/adapters/repos/db/compression"
	"github.com/weaviate/textindex/entities/document"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// DefaultCacheBlocks is the number of decompressed blocks a reader keeps.
const DefaultCacheBlocks = 100

// CacheMetrics observes the block cache.
type CacheMetrics interface {
	DocStoreCacheHit()
	DocStoreCacheMiss()
}

// Reader retrieves stored documents. It is safe for concurrent use.
type Reader struct {
	data        []byte
	codec       compression.Codec
	checkpoints []Checkpoint
	numDocs     uint32
	cache       *lru.Cache[uint64, *block]
	metrics     CacheMetrics
}

type block struct {
	offsets []uint32 // numDocs+1 offsets into docs
	docs    []byte
}

func corrupted(format string, args ...interface{}) error {
	return enterrors.NewCorruptedError("doc store", format, args...)
}

// Open reads the store index. cacheBlocks <= 0 disables the block cache.
func Open(data []byte, cacheBlocks int, metrics CacheMetrics) (*Reader, error) {
	if len(data) < footerSize+4 {
		return nil, corrupted("%d bytes is too short", len(data))
	}
	footer := data[len(data)-footerSize:]
	name := string(bytes.TrimRight(footer[:codecNameSize], "\x00"))
	indexOffset := binary.LittleEndian.Uint64(footer[codecNameSize:])
	numDocs := binary.LittleEndian.Uint32(footer[codecNameSize+8:])

	codec, err := compression.Get(name)
	if err != nil {
		return nil, corrupted("%v", err)
	}
	indexEnd := uint64(len(data) - footerSize)
	if indexOffset+4 > indexEnd {
		return nil, corrupted("index offset %d out of bounds", indexOffset)
	}
	num := uint64(binary.LittleEndian.Uint32(data[indexOffset:]))
	if indexOffset+4+num*checkpointLen != indexEnd {
		return nil, corrupted("index of %d checkpoints does not fit", num)
	}

	r := &Reader{data: data, codec: codec, numDocs: numDocs, metrics: metrics}
	r.checkpoints = make([]Checkpoint, num)
	pos := indexOffset + 4
	next := uint32(0)
	for i := range r.checkpoints {
		cp := Checkpoint{
			FirstDoc: binary.LittleEndian.Uint32(data[pos:]),
			EndDoc:   binary.LittleEndian.Uint32(data[pos+4:]),
			Offset:   binary.LittleEndian.Uint64(data[pos+8:]),
			Length:   binary.LittleEndian.Uint32(data[pos+16:]),
		}
		pos += checkpointLen
		if cp.FirstDoc != next || cp.EndDoc <= cp.FirstDoc || cp.Offset+uint64(cp.Length) > indexOffset {
			return nil, corrupted("invalid checkpoint %d", i)
		}
		next = cp.EndDoc
		r.checkpoints[i] = cp
	}
	if next != numDocs {
		return nil, corrupted("checkpoints cover %d docs, footer says %d", next, numDocs)
	}

	if cacheBlocks > 0 {
		cache, err := lru.New[uint64, *block](cacheBlocks)
		if err != nil {
			return nil, errors.Wrap(err, "create block cache")
		}
		r.cache = cache
	}
	return r, nil
}

func (r *Reader) NumDocs() uint32 {
	return r.numDocs
}

func (r *Reader) Codec() compression.Codec {
	return r.codec
}

func (r *Reader) Checkpoints() []Checkpoint {
	return r.checkpoints
}

func (r *Reader) rawBlock(cp Checkpoint) []byte {
	return r.data[cp.Offset : cp.Offset+uint64(cp.Length)]
}

func (r *Reader) checkpoint(doc uint32) (Checkpoint, bool) {
	i := sort.Search(len(r.checkpoints), func(i int) bool { return r.checkpoints[i].EndDoc > doc })
	if i == len(r.checkpoints) {
		return Checkpoint{}, false
	}
	return r.checkpoints[i], true
}

func (r *Reader) block(cp Checkpoint) (*block, error) {
	if r.cache != nil {
		if b, ok := r.cache.Get(cp.Offset); ok {
			if r.metrics != nil {
				r.metrics.DocStoreCacheHit()
			}
			return b, nil
		}
		if r.metrics != nil {
			r.metrics.DocStoreCacheMiss()
		}
	}

	raw, err := r.codec.Decompress(r.rawBlock(cp))
	if err != nil {
		return nil, err
	}
	count, n := binary.Uvarint(raw)
	if n <= 0 || count != uint64(cp.EndDoc-cp.FirstDoc) {
		return nil, corrupted("block at %d holds %d docs, expected %d", cp.Offset, count, cp.EndDoc-cp.FirstDoc)
	}
	pos := n
	b := &block{offsets: make([]uint32, count+1)}
	for i := uint64(0); i < count; i++ {
		l, n := binary.Uvarint(raw[pos:])
		if n <= 0 {
			return nil, corrupted("invalid doc length in block at %d", cp.Offset)
		}
		pos += n
		b.offsets[i+1] = b.offsets[i] + uint32(l)
	}
	b.docs = raw[pos:]
	if int(b.offsets[count]) != len(b.docs) {
		return nil, corrupted("block at %d has %d doc bytes, lengths sum to %d", cp.Offset, len(b.docs), b.offsets[count])
	}

	if r.cache != nil {
		r.cache.Add(cp.Offset, b)
	}
	return b, nil
}

// GetBytes returns the serialized document. Only the block holding doc is
// decompressed.
func (r *Reader) GetBytes(doc uint32) ([]byte, error) {
	cp, ok := r.checkpoint(doc)
	if !ok {
		return nil, errors.Errorf("doc %d out of range, store holds %d docs", doc, r.numDocs)
	}
	b, err := r.block(cp)
	if err != nil {
		return nil, err
	}
	i := doc - cp.FirstDoc
	return b.docs[b.offsets[i]:b.offsets[i+1]], nil
}

func (r *Reader) Get(doc uint32) (*document.Document, error) {
	raw, err := r.GetBytes(doc)
	if err != nil {
		return nil, err
	}
	return document.Unmarshal(raw)
}

// Iter calls fn with every doc in order, decompressing each block once
// without going through the cache.
func (r *Reader) Iter(fn func(doc uint32, raw []byte) error) error {
	for _, cp := range r.checkpoints {
		raw, err := r.codec.Decompress(r.rawBlock(cp))
		if err != nil {
			return err
		}
		count, pos := binary.Uvarint(raw)
		if pos <= 0 || count != uint64(cp.EndDoc-cp.FirstDoc) {
			return corrupted("block at %d holds %d docs, expected %d", cp.Offset, count, cp.EndDoc-cp.FirstDoc)
		}
		lens := make([]uint64, count)
		for i := range lens {
			l, n := binary.Uvarint(raw[pos:])
			if n <= 0 {
				return corrupted("invalid doc length in block at %d", cp.Offset)
			}
			lens[i] = l
			pos += n
		}
		for i, l := range lens {
			if uint64(len(raw)-pos) < l {
				return corrupted("doc %d exceeds block at %d", cp.FirstDoc+uint32(i), cp.Offset)
			}
			if err := fn(cp.FirstDoc+uint32(i), raw[pos:pos+int(l)]); err != nil {
				return err
			}
			pos += int(l)
		}
	}
	return nil
}
