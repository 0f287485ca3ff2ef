package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// HistoryKind distinguishes the two history subcollections.
type HistoryKind = string

const (
	HistoryKindQuiz        HistoryKind = "quiz"
	HistoryKindTranslation HistoryKind = "translation"
)

// HistoryRecord is one completed quiz or translation result.
// Payload is the AI-generated result, validated against a fixed schema
// at the boundary before the record is ever constructed.
type HistoryRecord struct {
	ID         string          `json:"id"`
	Kind       HistoryKind     `json:"kind"`
	SourceText string          `json:"source_text"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StructurallyEqual reports whether two records describe the same result:
// same source text and same payload, regardless of id. Used to de-duplicate
// records that were created twice (once offline, once remote) under
// different ids.
func (r HistoryRecord) StructurallyEqual(other HistoryRecord) bool {
	return r.Kind == other.Kind &&
		r.SourceText == other.SourceText &&
		bytes.Equal(compactJSON(r.Payload), compactJSON(other.Payload))
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
