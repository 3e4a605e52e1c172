// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/eventscout/core"
)

// Metadata value tags.
const (
	tagString byte = iota + 1
	tagInt
	tagFloat
	tagBool
)

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, documentMUS.Size(*doc))
	documentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := documentMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalCollectionInfo serializes a CollectionInfo to bytes.
func MarshalCollectionInfo(info *CollectionInfo) []byte {
	buf := make([]byte, collectionInfoMUS.Size(*info))
	collectionInfoMUS.Marshal(*info, buf)
	return buf
}

// UnmarshalCollectionInfo deserializes a CollectionInfo from bytes.
func UnmarshalCollectionInfo(data []byte) (*CollectionInfo, error) {
	info, _, err := collectionInfoMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &info, nil
}

var (
	documentMUS       = documentSer{}
	collectionInfoMUS = collectionInfoSer{}
	metadataMUS       = metadataSer{}
	vectorMUS         = vectorSer{}
)

// documentSer encodes Id, Text, Metadata and Vector in that order.
type documentSer struct{}

func (documentSer) Size(doc core.Document) (size int) {
	size = varint.Uint64.Size(uint64(doc.Id))
	size += ord.String.Size(doc.Text)
	size += metadataMUS.Size(doc.Metadata)
	return size + vectorMUS.Size(doc.Vector)
}

func (documentSer) Marshal(doc core.Document, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(doc.Id), bs)
	n += ord.String.Marshal(doc.Text, bs[n:])
	n += metadataMUS.Marshal(doc.Metadata, bs[n:])
	return n + vectorMUS.Marshal(doc.Vector, bs[n:])
}

func (documentSer) Unmarshal(bs []byte) (doc core.Document, n int, err error) {
	var (
		id uint64
		n1 int
	)
	id, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	doc.Id = core.ID(id)

	doc.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	doc.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	doc.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

// metadataSer encodes an entry count followed by key, tag, value triples
// in key order. Values that are not scalars are not encoded.
type metadataSer struct{}

func scalarTag(v any) (byte, bool) {
	switch v.(type) {
	case string:
		return tagString, true
	case int, int32, int64:
		return tagInt, true
	case float32, float64:
		return tagFloat, true
	case bool:
		return tagBool, true
	default:
		return 0, false
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return 0
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func (metadataSer) encodable(m core.Metadata) []string {
	keys := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if _, ok := scalarTag(m[k]); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s metadataSer) Size(m core.Metadata) (size int) {
	keys := s.encodable(m)
	size = varint.Uint64.Size(uint64(len(keys)))
	for _, k := range keys {
		v := m[k]
		tag, _ := scalarTag(v)
		size += ord.String.Size(k) + 1
		switch tag {
		case tagString:
			size += ord.String.Size(v.(string))
		case tagInt:
			size += varint.Int64.Size(asInt64(v))
		case tagFloat:
			size += raw.Float64.Size(asFloat64(v))
		case tagBool:
			size += ord.Bool.Size(v.(bool))
		}
	}
	return size
}

func (s metadataSer) Marshal(m core.Metadata, bs []byte) (n int) {
	keys := s.encodable(m)
	n = varint.Uint64.Marshal(uint64(len(keys)), bs)
	for _, k := range keys {
		v := m[k]
		tag, _ := scalarTag(v)
		n += ord.String.Marshal(k, bs[n:])
		bs[n] = tag
		n++
		switch tag {
		case tagString:
			n += ord.String.Marshal(v.(string), bs[n:])
		case tagInt:
			n += varint.Int64.Marshal(asInt64(v), bs[n:])
		case tagFloat:
			n += raw.Float64.Marshal(asFloat64(v), bs[n:])
		case tagBool:
			n += ord.Bool.Marshal(v.(bool), bs[n:])
		}
	}
	return n
}

func (metadataSer) Unmarshal(bs []byte) (m core.Metadata, n int, err error) {
	var (
		count uint64
		n1    int
	)
	count, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	m = make(core.Metadata, min(count, 64))
	for i := uint64(0); i < count; i++ {
		var key string
		key, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		if n >= len(bs) {
			err = ErrTruncatedData
			return
		}
		tag := bs[n]
		n++

		var value any
		switch tag {
		case tagString:
			value, n1, err = ord.String.Unmarshal(bs[n:])
		case tagInt:
			value, n1, err = varint.Int64.Unmarshal(bs[n:])
		case tagFloat:
			value, n1, err = raw.Float64.Unmarshal(bs[n:])
		case tagBool:
			value, n1, err = ord.Bool.Unmarshal(bs[n:])
		default:
			err = fmt.Errorf("unknown metadata tag %d for key %q", tag, key)
			return
		}
		n += n1
		if err != nil {
			return
		}
		m[key] = value
	}
	return
}

// vectorSer encodes a length prefix followed by fixed-width floats.
type vectorSer struct{}

func (vectorSer) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func (vectorSer) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorSer) Unmarshal(bs []byte) (v []float32, n int, err error) {
	var (
		length uint64
		n1     int
	)
	length, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	if length == 0 {
		return
	}
	if length > uint64(len(bs)-n)/4 {
		err = ErrTruncatedData
		return
	}
	v = make([]float32, length)
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

// collectionInfoSer encodes Name, Dimensions and CreatedAt (Unix micros).
type collectionInfoSer struct{}

func (collectionInfoSer) Size(info CollectionInfo) (size int) {
	size = ord.String.Size(info.Name)
	size += varint.Int64.Size(int64(info.Dimensions))
	return size + varint.Int64.Size(info.CreatedAt.UnixMicro())
}

func (collectionInfoSer) Marshal(info CollectionInfo, bs []byte) (n int) {
	n = ord.String.Marshal(info.Name, bs)
	n += varint.Int64.Marshal(int64(info.Dimensions), bs[n:])
	return n + varint.Int64.Marshal(info.CreatedAt.UnixMicro(), bs[n:])
}

func (collectionInfoSer) Unmarshal(bs []byte) (info CollectionInfo, n int, err error) {
	var (
		dims, micros int64
		n1           int
	)
	info.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	dims, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	info.Dimensions = int(dims)
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	info.CreatedAt = time.UnixMicro(micros).UTC()
	return
}
