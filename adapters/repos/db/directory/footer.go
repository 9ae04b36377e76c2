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

package directory

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	enterrors "github.com/weaviate/textindex/entities/errors"
)

const (
	// FooterSize is the number of bytes appended to every managed file:
	// [xxhash64 of the body u64][body length u64][magic u32]
	FooterSize  = 8 + 8 + 4
	footerMagic = 0x58495854
)

type footerWritePtr struct {
	inner  WritePtr
	digest *xxhash.Digest
	length uint64
}

// withFooter appends a checksum footer to everything written to inner.
func withFooter(inner WritePtr) WritePtr {
	return &footerWritePtr{inner: inner, digest: xxhash.New()}
}

func (p *footerWritePtr) Write(b []byte) (int, error) {
	n, err := p.inner.Write(b)
	p.digest.Write(b[:n])
	p.length += uint64(n)
	return n, err
}

func (p *footerWritePtr) Terminate() error {
	var footer [FooterSize]byte
	binary.LittleEndian.PutUint64(footer[0:], p.digest.Sum64())
	binary.LittleEndian.PutUint64(footer[8:], p.length)
	binary.LittleEndian.PutUint32(footer[16:], footerMagic)
	if _, err := p.inner.Write(footer[:]); err != nil {
		return err
	}
	return p.inner.Terminate()
}

func (p *footerWritePtr) Abort() error {
	return p.inner.Abort()
}

// splitFooter checks the footer of data and returns the body. The body
// checksum is only computed if verify is set.
func splitFooter(name string, data []byte, verify bool) ([]byte, error) {
	if len(data) < FooterSize {
		return nil, enterrors.NewCorruptedError(name, "%d bytes cannot hold a footer", len(data))
	}
	footer := data[len(data)-FooterSize:]
	body := data[:len(data)-FooterSize]
	if magic := binary.LittleEndian.Uint32(footer[16:]); magic != footerMagic {
		return nil, enterrors.NewCorruptedError(name, "bad footer magic %x", magic)
	}
	if length := binary.LittleEndian.Uint64(footer[8:]); length != uint64(len(body)) {
		return nil, enterrors.NewCorruptedError(name, "footer records %d bytes, file holds %d", length, len(body))
	}
	if verify {
		expected := binary.LittleEndian.Uint64(footer[0:])
		if actual := xxhash.Sum64(body); actual != expected {
			return nil, enterrors.NewCorruptedError(name, "checksum mismatch: expected %x, got %x", expected, actual)
		}
	}
	return body, nil
}
