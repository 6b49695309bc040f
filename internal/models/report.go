package models

// Report is one source report row from the reports table. Rows are written once by the
// bulk load and never updated, so a Report is addressed by its 0-based Offset for the
// lifetime of the table.
type Report struct {
	Offset        int    `json:"offset"`
	Author        string `json:"Author"`
	DatePublished string `json:"date_published"`
	Description   string `json:"description"`
	ImageURL      string `json:"image_url"`
	Language      string `json:"language"`
	SourceDomain  string `json:"source_domain"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}
