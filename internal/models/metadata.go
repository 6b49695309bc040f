package models

import "strconv"

// RiskMetadata describes an entry of the AI risk taxonomy collection.
type RiskMetadata struct {
	Provenance
	Title           string `json:"title"`
	RiskCategory    string `json:"risk_category"`
	RiskSubcategory string `json:"risk_subcategory"`
	Entity          string `json:"entity"`
	Intent          string `json:"intent"`
	Timing          string `json:"timing"`
	Domain          string `json:"domain"`
	SubDomain       string `json:"sub_domain"`
	QuickRef        string `json:"quick_ref"`
	EvID            string `json:"ev_id"`
}

func (m *RiskMetadata) Kind() Kind { return KindRisk }

func (m *RiskMetadata) Clone() Metadata {
	c := *m
	return &c
}

func (m *RiskMetadata) Fields() map[string]string {
	return withProvenance(m.Provenance, map[string]string{
		"title":            m.Title,
		"risk_category":    m.RiskCategory,
		"risk_subcategory": m.RiskSubcategory,
		"entity":           m.Entity,
		"intent":           m.Intent,
		"timing":           m.Timing,
		"domain":           m.Domain,
		"sub_domain":       m.SubDomain,
		"quick_ref":        m.QuickRef,
		"ev_id":            m.EvID,
	})
}

// IncidentMetadata describes an entry of the incident collection.
//
// Reports holds the incident's reference numbers in serialized form. Entries written by
// the current ingestion use a JSON array of integers; older data may hold a Python-style
// literal list or a comma-joined string. ReportsDetails holds the resolved report rows.
type IncidentMetadata struct {
	Provenance
	ID             string   `json:"id"`
	IncidentID     string   `json:"incident_id"`
	IncidentDate   string   `json:"incident_date"`
	Deployer       string   `json:"deployer"`
	Developer      string   `json:"developer"`
	HarmedParties  string   `json:"harmed_parties"`
	Title          string   `json:"title"`
	Reports        string   `json:"reports"`
	ReportsDetails []Report `json:"reports_details,omitempty"`
}

func (m *IncidentMetadata) Kind() Kind { return KindIncident }

func (m *IncidentMetadata) Clone() Metadata {
	c := *m
	if m.ReportsDetails != nil {
		c.ReportsDetails = append([]Report(nil), m.ReportsDetails...)
	}
	return &c
}

func (m *IncidentMetadata) Fields() map[string]string {
	return withProvenance(m.Provenance, map[string]string{
		"id":             m.ID,
		"incident_id":    m.IncidentID,
		"incident_date":  m.IncidentDate,
		"deployer":       m.Deployer,
		"developer":      m.Developer,
		"harmed_parties": m.HarmedParties,
		"title":          m.Title,
		"reports":        m.Reports,
	})
}

// Resolved reports whether report details are already attached.
func (m *IncidentMetadata) Resolved() bool {
	return len(m.ReportsDetails) > 0
}

// FrameworkMetadata describes an entry of a regulatory framework document.
type FrameworkMetadata struct {
	Provenance
	Page    int `json:"page"`
	Element int `json:"element"`
}

func (m *FrameworkMetadata) Kind() Kind { return KindFramework }

func (m *FrameworkMetadata) Clone() Metadata {
	c := *m
	return &c
}

func (m *FrameworkMetadata) Fields() map[string]string {
	return withProvenance(m.Provenance, map[string]string{
		"page":    strconv.Itoa(m.Page),
		"element": strconv.Itoa(m.Element),
	})
}

func withProvenance(p Provenance, fields map[string]string) map[string]string {
	fields["source"] = p.Source
	fields["ingestion_date"] = p.IngestionDate
	fields["data_owner"] = p.DataOwner
	return fields
}
