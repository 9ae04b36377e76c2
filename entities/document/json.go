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

package document

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/weaviate/textindex/entities/schema"
)

// JSON encodes obj as the value of a json field.
func JSON(obj map[string]any) (Value, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Value{}, errors.Wrap(err, "encode json object")
	}
	return Value{typ: schema.JSON, data: data}, nil
}

// JSONFromBytes takes an encoded json object as is.
func JSONFromBytes(data []byte) (Value, error) {
	if err := validJSONObject(data); err != nil {
		return Value{}, err
	}
	return Value{typ: schema.JSON, data: data}, nil
}

func validJSONObject(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return errors.New("not a json object")
	}
	return nil
}

// AsJSON decodes the object of a json value. Numbers are kept as
// json.Number so integers survive unchanged.
func (v Value) AsJSON() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(v.data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, "decode json object")
	}
	return obj, nil
}

// JSONLeaf is a scalar of a json object together with its path. Text
// leaves carry Text, every other leaf its mapped uint64 in Num.
type JSONLeaf struct {
	Path []string
	Type schema.FieldType
	Text string
	Num  uint64
}

// WalkJSON calls fn for every scalar of the object in v. Keys are visited
// in sorted order, array elements in order, nulls are skipped. Strings
// holding an RFC 3339 date become date leaves.
func (v Value) WalkJSON(fn func(leaf JSONLeaf)) error {
	obj, err := v.AsJSON()
	if err != nil {
		return err
	}
	walkObject(nil, obj, fn)
	return nil
}

func walkObject(path []string, obj map[string]any, fn func(JSONLeaf)) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walkValue(append(path[:len(path):len(path)], k), obj[k], fn)
	}
}

func walkValue(path []string, v any, fn func(JSONLeaf)) {
	switch val := v.(type) {
	case nil:
	case bool:
		fn(JSONLeaf{Path: path, Type: schema.Bool, Num: schema.BoolToU64(val)})
	case json.Number:
		fn(numberLeaf(path, val))
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			fn(JSONLeaf{Path: path, Type: schema.Date, Num: schema.DateToU64(t)})
			return
		}
		fn(JSONLeaf{Path: path, Type: schema.Text, Text: val})
	case []any:
		for _, elem := range val {
			walkValue(path, elem, fn)
		}
	case map[string]any:
		walkObject(path, val, fn)
	}
}

func numberLeaf(path []string, n json.Number) JSONLeaf {
	s := n.String()
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return JSONLeaf{Path: path, Type: schema.U64, Num: u}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return JSONLeaf{Path: path, Type: schema.I64, Num: schema.I64ToU64(i)}
	}
	f, _ := strconv.ParseFloat(s, 64)
	return JSONLeaf{Path: path, Type: schema.F64, Num: schema.F64ToU64(f)}
}

// Term returns the term a non text leaf is indexed under.
func (l JSONLeaf) Term(field schema.FieldID) schema.Term {
	if l.Type == schema.Text {
		return schema.JSONTermFromText(field, l.Path, l.Text)
	}
	return schema.JSONTermFromFastValue(field, l.Path, l.Type, l.Num)
}
