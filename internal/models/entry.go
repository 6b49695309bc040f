// Package models defines the entries stored in collections, their typed metadata, and
// the source report records attached to incidents.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which collection family built an entry and therefore which metadata
// type it carries.
type Kind string

const (
	KindRisk      Kind = "risk"
	KindIncident  Kind = "incident"
	KindFramework Kind = "framework"
)

// Provenance records where an entry came from.
type Provenance struct {
	Source        string `json:"source"`
	IngestionDate string `json:"ingestion_date"`
	DataOwner     string `json:"data_owner"`
}

// Origin returns the provenance itself, so embedding Provenance satisfies Provenanced.
func (p Provenance) Origin() Provenance { return p }

// Provenanced is implemented by every metadata type.
type Provenanced interface {
	Origin() Provenance
}

// Metadata is the typed attribute set attached to a collection entry.
type Metadata interface {
	Provenanced
	Kind() Kind
	// Fields returns the metadata as flat string attributes, used for display and indexing.
	Fields() map[string]string
	Clone() Metadata
}

// Entry is one chunk of ingested text plus its metadata. Entries are write-once.
type Entry struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Content    string    `json:"content"`
	Metadata   Metadata  `json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone returns a copy whose metadata can be modified without touching the original.
func (e Entry) Clone() Entry {
	out := e
	if e.Metadata != nil {
		out.Metadata = e.Metadata.Clone()
	}
	return out
}

// Title returns the entry title when its metadata has one.
func (e Entry) Title() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.Fields()["title"]
}

// ScoredEntry is one element of a retrieval result. LexicalRank and VectorRank are
// 1-based positions in each ranker's candidate list; zero means the ranker did not return it.
type ScoredEntry struct {
	Entry       Entry   `json:"entry"`
	Score       float64 `json:"score"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
}

// EncodeMetadata serializes metadata for storage.
func EncodeMetadata(m Metadata) (Kind, []byte, error) {
	if m == nil {
		return "", nil, fmt.Errorf("metadata is nil")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s metadata: %w", m.Kind(), err)
	}
	return m.Kind(), data, nil
}

// DecodeMetadata restores metadata stored by EncodeMetadata.
func DecodeMetadata(kind Kind, data []byte) (Metadata, error) {
	var m Metadata
	switch kind {
	case KindRisk:
		m = &RiskMetadata{}
	case KindIncident:
		m = &IncidentMetadata{}
	case KindFramework:
		m = &FrameworkMetadata{}
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", kind)
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s metadata: %w", kind, err)
	}
	return m, nil
}
