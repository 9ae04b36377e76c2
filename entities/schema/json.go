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

package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Terms of json fields embed the path of the leaf they index:
//
//	[field id][json code][segment 0x01 segment ...][0x00][leaf type code][value]
//
// Path segments holding the separator bytes make ambiguous terms.
const (
	JSONPathSep   byte = 1
	JSONEndOfPath byte = 0
)

// SplitJSONPath splits a dotted path into its segments. A backslash
// escapes the next character, so `k8s\.node` is a single segment.
func SplitJSONPath(path string) []string {
	var (
		segments []string
		buf      strings.Builder
		escaped  bool
	)
	for _, r := range path {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segments = append(segments, buf.String())
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	return append(segments, buf.String())
}

// JSONPathPrefix returns the bytes shared by every term of the leaves at
// path.
func JSONPathPrefix(field FieldID, path []string) Term {
	t := NewTerm(field, JSON, nil)
	for i, seg := range path {
		if i > 0 {
			t = append(t, JSONPathSep)
		}
		t = append(t, seg...)
	}
	return append(t, JSONEndOfPath)
}

// NewJSONTerm builds the term of a leaf of type typ at path.
func NewJSONTerm(field FieldID, path []string, typ FieldType, value []byte) Term {
	t := JSONPathPrefix(field, path)
	t = append(t, typ.Code())
	return append(t, value...)
}

// JSONTermFromText is the term of one token of a text leaf.
func JSONTermFromText(field FieldID, path []string, text string) Term {
	return NewJSONTerm(field, path, Text, []byte(text))
}

// JSONTermFromFastValue is the term of a numeric, bool or date leaf.
func JSONTermFromFastValue(field FieldID, path []string, typ FieldType, val uint64) Term {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	return NewJSONTerm(field, path, typ, buf[:])
}

// JSONTypedTerm maps a value written as a string onto the term of the
// typed leaf it would have been indexed as: RFC 3339 dates, then
// integers, floats and booleans. It reports false for plain text.
func JSONTypedTerm(field FieldID, path []string, s string) (Term, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return JSONTermFromFastValue(field, path, Date, DateToU64(t)), true
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return JSONTermFromFastValue(field, path, U64, u), true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return JSONTermFromFastValue(field, path, I64, I64ToU64(i)), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return JSONTermFromFastValue(field, path, F64, F64ToU64(f)), true
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return JSONTermFromFastValue(field, path, Bool, BoolToU64(b)), true
	}
	return nil, false
}

// JSONLeaf splits a json term into the path, the type and the value of
// its leaf.
func (t Term) JSONLeaf() (path []string, typ FieldType, value []byte, ok bool) {
	if !t.Valid() || t.Type() != JSON {
		return nil, 0, nil, false
	}
	rest := t.ValueBytes()
	end := bytes.IndexByte(rest, JSONEndOfPath)
	if end < 0 || end+1 >= len(rest) {
		return nil, 0, nil, false
	}
	typ, ok = FieldTypeFromCode(rest[end+1])
	if !ok || typ == JSON {
		return nil, 0, nil, false
	}
	for _, seg := range bytes.Split(rest[:end], []byte{JSONPathSep}) {
		path = append(path, string(seg))
	}
	return path, typ, rest[end+2:], true
}

func formatJSONTerm(t Term) string {
	path, typ, value, ok := t.JSONLeaf()
	if !ok {
		return fmt.Sprintf("invalid %x", t.ValueBytes())
	}
	leaf := fmt.Sprintf("%q", value)
	if typ.IsFastValue() && len(value) == 8 {
		leaf = FormatFastValue(typ, binary.BigEndian.Uint64(value))
	}
	return fmt.Sprintf("path=%s, leaf=%s, %s", strings.Join(path, "."), typ, leaf)
}
