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

// Package bitpacking stores unsigned integers with a fixed number of bits
// per value. Bits are written least significant first into little endian
// 64 bit words, which allows random access to any value of a packed run.
package bitpacking

import (
	"encoding/binary"
	"math/bits"
)

// DeltaEncode replaces values, which must be non decreasing, by the
// difference to their predecessor. prev is the implicit value before
// values[0].
func DeltaEncode(values []uint32, prev uint32) {
	for i, v := range values {
		values[i] = v - prev
		prev = v
	}
}

// DeltaDecode reverses DeltaEncode in place.
func DeltaDecode(deltas []uint32, prev uint32) {
	for i, d := range deltas {
		prev += d
		deltas[i] = prev
	}
}

// BitWidth32 is the number of bits needed for the largest of values.
func BitWidth32(values []uint32) uint8 {
	var or uint32
	for _, v := range values {
		or |= v
	}
	return uint8(bits.Len32(or))
}

// BitWidth64 is the number of bits needed to represent max.
func BitWidth64(max uint64) uint8 {
	return uint8(bits.Len64(max))
}

// PackedLen is the number of bytes Pack32 and Pack64 produce for n values.
func PackedLen(n int, width uint8) int {
	return (n*int(width) + 7) / 8
}

// Pack32 appends values packed with width bits each to dst.
func Pack32(dst []byte, values []uint32, width uint8) []byte {
	if width == 0 {
		return dst
	}
	start := len(dst)
	dst = append(dst, make([]byte, PackedLen(len(values), width))...)
	out := dst[start:]
	bitPos := 0
	for _, v := range values {
		writeBits(out, bitPos, uint64(v), width)
		bitPos += int(width)
	}
	return dst
}

// Unpack32 fills dst with len(dst) values read from src. It does not
// allocate.
func Unpack32(dst []uint32, src []byte, width uint8) {
	if width == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	bitPos := 0
	for i := range dst {
		dst[i] = uint32(readBits(src, bitPos, width))
		bitPos += int(width)
	}
}

// Pack64 appends values packed with width bits each to dst.
func Pack64(dst []byte, values []uint64, width uint8) []byte {
	if width == 0 {
		return dst
	}
	start := len(dst)
	dst = append(dst, make([]byte, PackedLen(len(values), width))...)
	out := dst[start:]
	bitPos := 0
	for _, v := range values {
		writeBits(out, bitPos, v, width)
		bitPos += int(width)
	}
	return dst
}

// Get returns the value at idx of a packed run.
func Get(src []byte, idx int, width uint8) uint64 {
	if width == 0 {
		return 0
	}
	return readBits(src, idx*int(width), width)
}

func writeBits(out []byte, bitPos int, v uint64, width uint8) {
	remaining := int(width)
	for remaining > 0 {
		byteIdx := bitPos >> 3
		shift := bitPos & 7
		n := 8 - shift
		if n > remaining {
			n = remaining
		}
		out[byteIdx] |= byte((v & (1<<uint(n) - 1)) << uint(shift))
		v >>= uint(n)
		bitPos += n
		remaining -= n
	}
}

func readBits(src []byte, bitPos int, width uint8) uint64 {
	byteIdx := bitPos >> 3
	shift := uint(bitPos & 7)
	// fast path: a full 8 byte word is available and covers the value
	if byteIdx+8 <= len(src) && int(shift)+int(width) <= 64 {
		word := binary.LittleEndian.Uint64(src[byteIdx:])
		return (word >> shift) & mask(width)
	}
	var v uint64
	got := 0
	remaining := int(width)
	for remaining > 0 {
		byteIdx = bitPos >> 3
		s := bitPos & 7
		n := 8 - s
		if n > remaining {
			n = remaining
		}
		chunk := uint64(src[byteIdx]>>uint(s)) & (1<<uint(n) - 1)
		v |= chunk << uint(got)
		got += n
		bitPos += n
		remaining -= n
	}
	return v
}

func mask(width uint8) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<width - 1
}
