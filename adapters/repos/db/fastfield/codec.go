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

package fastfield

import (
	"encoding/binary"
	"sort"

	"github.com/weaviate/textindex/adapters/repos/db/bitpacking"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

// Codec is the encoding of a run of u64 values.
type Codec uint8

const (
	// CodecBitpacked stores value-min with the smallest fixed width.
	CodecBitpacked Codec = 1
	// CodecDictionary stores the sorted distinct values once and a packed
	// ordinal per value.
	CodecDictionary Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecBitpacked:
		return "bitpacked"
	case CodecDictionary:
		return "dictionary"
	default:
		return "unknown"
	}
}

const (
	bitpackedHeaderSize  = 1 + 4 + 8 + 8 + 1
	dictionaryHeaderSize = 1 + 4 + 4 + 1
)

func corrupted(format string, args ...interface{}) error {
	return enterrors.NewCorruptedError("fast field", format, args...)
}

func minMax(vals []uint64) (uint64, uint64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func distinct(vals []uint64) []uint64 {
	sorted := append([]uint64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func bitpackedSize(n int, lo, hi uint64) int {
	return bitpackedHeaderSize + bitpacking.PackedLen(n, bitpacking.BitWidth64(hi-lo))
}

func dictionarySize(n, numDistinct int) int {
	width := uint8(0)
	if numDistinct > 1 {
		width = bitpacking.BitWidth64(uint64(numDistinct - 1))
	}
	return dictionaryHeaderSize + 8*numDistinct + bitpacking.PackedLen(n, width)
}

// chooseCodec picks the codec with the smallest estimated size. The
// dictionary is only computed when it could win.
func chooseCodec(vals []uint64) (Codec, []uint64) {
	lo, hi := minMax(vals)
	packed := bitpackedSize(len(vals), lo, hi)
	if len(vals) < 2 || hi-lo < 2 {
		return CodecBitpacked, nil
	}
	dict := distinct(vals)
	if dictionarySize(len(vals), len(dict)) < packed {
		return CodecDictionary, dict
	}
	return CodecBitpacked, nil
}

// appendValues appends the encoding of vals to dst.
func appendValues(dst []byte, vals []uint64) []byte {
	codec, dict := chooseCodec(vals)
	return appendValuesWith(dst, vals, codec, dict)
}

func appendValuesWith(dst []byte, vals []uint64, codec Codec, dict []uint64) []byte {
	dst = append(dst, byte(codec))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vals)))

	switch codec {
	case CodecDictionary:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(dict)))
		for _, v := range dict {
			dst = binary.LittleEndian.AppendUint64(dst, v)
		}
		width := bitpacking.BitWidth64(uint64(len(dict) - 1))
		dst = append(dst, width)
		ords := make([]uint64, len(vals))
		for i, v := range vals {
			ords[i] = uint64(sort.Search(len(dict), func(j int) bool { return dict[j] >= v }))
		}
		return bitpacking.Pack64(dst, ords, width)

	default:
		lo, hi := minMax(vals)
		width := bitpacking.BitWidth64(hi - lo)
		dst = binary.LittleEndian.AppendUint64(dst, lo)
		dst = binary.LittleEndian.AppendUint64(dst, hi)
		dst = append(dst, width)
		shifted := make([]uint64, len(vals))
		for i, v := range vals {
			shifted[i] = v - lo
		}
		return bitpacking.Pack64(dst, shifted, width)
	}
}

// values is a decoded header over an encoded run, values are unpacked on
// access.
type values struct {
	codec Codec
	num   int
	min   uint64
	max   uint64
	width uint8
	dict  []uint64
	data  []byte
}

// openValues parses a run at the start of data and returns it with the
// number of bytes it occupies.
func openValues(data []byte) (values, int, error) {
	if len(data) < 5 {
		return values{}, 0, corrupted("values header truncated")
	}
	v := values{codec: Codec(data[0]), num: int(binary.LittleEndian.Uint32(data[1:]))}
	pos := 5

	switch v.codec {
	case CodecBitpacked:
		if len(data) < bitpackedHeaderSize {
			return values{}, 0, corrupted("bitpacked header truncated")
		}
		v.min = binary.LittleEndian.Uint64(data[pos:])
		v.max = binary.LittleEndian.Uint64(data[pos+8:])
		v.width = data[pos+16]
		pos += 17
	case CodecDictionary:
		if len(data) < pos+4 {
			return values{}, 0, corrupted("dictionary header truncated")
		}
		n := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if n == 0 || len(data) < pos+8*n+1 {
			return values{}, 0, corrupted("dictionary of %d values truncated", n)
		}
		v.dict = make([]uint64, n)
		for i := range v.dict {
			v.dict[i] = binary.LittleEndian.Uint64(data[pos:])
			pos += 8
		}
		v.min, v.max = v.dict[0], v.dict[n-1]
		v.width = data[pos]
		pos++
	default:
		return values{}, 0, corrupted("unknown codec %d", data[0])
	}

	if v.width > 64 {
		return values{}, 0, corrupted("invalid bit width %d", v.width)
	}
	size := bitpacking.PackedLen(v.num, v.width)
	if len(data) < pos+size {
		return values{}, 0, corrupted("%d packed values truncated", v.num)
	}
	v.data = data[pos : pos+size]
	return v, pos + size, nil
}

func (v *values) get(i int) uint64 {
	raw := bitpacking.Get(v.data, i, v.width)
	if v.codec == CodecDictionary {
		if raw >= uint64(len(v.dict)) {
			return v.max
		}
		return v.dict[raw]
	}
	return v.min + raw
}
