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

package compression

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

const (
	None   = "none"
	LZ4    = "lz4"
	Snappy = "snappy"
	Zstd   = "zstd"
)

// Codec compresses independent blocks of bytes.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	// Decompress fails with a CorruptedData error on malformed input.
	Decompress(src []byte) ([]byte, error)
}

var (
	registryLock sync.RWMutex
	registry     = map[string]Codec{}
)

func init() {
	Register(noneCodec{})
	Register(lz4Codec{})
	Register(snappyCodec{})
	Register(newZstdCodec())
}

// Register makes c available by its name, replacing any codec of the same
// name.
func Register(c Codec) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[c.Name()] = c
}

func Get(name string) (Codec, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown compression codec %q", name)
	}
	return c, nil
}

func Names() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func corrupted(codec string, err error) error {
	return enterrors.NewCorruptedError("compressed block", "%s: %v", codec, err)
}

type noneCodec struct{}

func (noneCodec) Name() string { return None }

func (noneCodec) Compress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (noneCodec) Decompress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return LZ4 }

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, corrupted(LZ4, err)
	}
	return out, nil
}

type snappyCodec struct{}

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decompress(src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, corrupted(Snappy, err)
	}
	return out, nil
}

// zstdCodec shares one encoder and decoder, both are safe for concurrent
// use through EncodeAll and DecodeAll.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(errors.Wrap(err, "create zstd encoder"))
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(errors.Wrap(err, "create zstd decoder"))
	}
	return &zstdCodec{enc: enc, dec: dec}
}

func (*zstdCodec) Name() string { return Zstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, corrupted(Zstd, err)
	}
	return out, nil
}
