package models

import (
	"testing"
)

func TestEncodeDecodeMetadata_incidentKeepsDetails(t *testing.T) {
	in := &IncidentMetadata{
		Provenance:     Provenance{Source: "incidents.csv", IngestionDate: "2026-01-02", DataOwner: "AIID"},
		IncidentID:     "42",
		Reports:        "[5,7]",
		ReportsDetails: []Report{{Offset: 3, Title: "r5"}},
	}
	kind, data, err := EncodeMetadata(in)
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindIncident {
		t.Fatalf("kind = %s", kind)
	}
	out, err := DecodeMetadata(kind, data)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := out.(*IncidentMetadata)
	if !ok {
		t.Fatalf("decoded %T", out)
	}
	if got.IncidentID != "42" || got.Reports != "[5,7]" || !got.Resolved() {
		t.Errorf("unexpected decode: %+v", got)
	}
	if got.Origin().DataOwner != "AIID" {
		t.Errorf("provenance lost: %+v", got.Origin())
	}
}

func TestDecodeMetadata_unknownKind(t *testing.T) {
	if _, err := DecodeMetadata("bogus", nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEntryClone_isolatesMetadata(t *testing.T) {
	orig := Entry{ID: "e1", Metadata: &IncidentMetadata{Title: "t"}}
	c := orig.Clone()
	c.Metadata.(*IncidentMetadata).ReportsDetails = []Report{{Offset: 1}}
	if orig.Metadata.(*IncidentMetadata).Resolved() {
		t.Error("clone shares metadata with original")
	}
	if c.Title() != "t" {
		t.Errorf("Title() = %q", c.Title())
	}
}

func TestFields_includeProvenance(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
		key  string
		want string
	}{
		{"risk", &RiskMetadata{Provenance: Provenance{Source: "risk.csv"}, RiskCategory: "Privacy"}, "risk_category", "Privacy"},
		{"risk source", &RiskMetadata{Provenance: Provenance{Source: "risk.csv"}}, "source", "risk.csv"},
		{"framework page", &FrameworkMetadata{Page: 3}, "page", "3"},
		{"incident owner", &IncidentMetadata{Provenance: Provenance{DataOwner: "AIID"}}, "data_owner", "AIID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.Fields()[tt.key]; got != tt.want {
				t.Errorf("Fields()[%q] = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
