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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/poiesic/docanalysis/core"
)

// MarshalVectorRecord serializes a VectorRecord to bytes.
// Layout: uint32 metadata length, JSON metadata, little-endian float32 values.
// The id is not stored; it is derived from the key.
func MarshalVectorRecord(record *core.VectorRecord) ([]byte, error) {
	meta, err := json.Marshal(record.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	buf := make([]byte, 4+len(meta)+len(record.Values)*4)
	binary.BigEndian.PutUint32(buf, uint32(len(meta)))
	offset := 4 + copy(buf[4:], meta)
	for i, f := range record.Values {
		binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	if len(data) < 4 {
		return nil, ErrTruncatedData
	}
	metaLen := int(binary.BigEndian.Uint32(data))
	if len(data) < 4+metaLen || (len(data)-4-metaLen)%4 != 0 {
		return nil, ErrTruncatedData
	}
	var record core.VectorRecord
	if err := json.Unmarshal(data[4:4+metaLen], &record.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	raw := data[4+metaLen:]
	record.Values = make([]float32, len(raw)/4)
	for i := range record.Values {
		record.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	record.ID = core.ChunkID(record.Metadata.SourceDocumentID, record.Metadata.ChunkIndex)
	return &record, nil
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*Job, error) {
	if len(data) == 0 {
		return nil, ErrTruncatedData
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &job, nil
}
