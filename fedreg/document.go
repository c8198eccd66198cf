// Package fedreg talks to the Federal Register documents API: search
// with agency filters, pagination traversal, typed upstream errors.
package fedreg

// Document is one search result from the documents API. The JSON fields
// mirror the upstream response; the unexported-by-tag fields track local
// retrieval state and never leave the process.
type Document struct {
	DocumentNumber  string `json:"document_number"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	Type            string `json:"type"`
	FullTextXMLURL  string `json:"full_text_xml_url"`
	HTMLURL         string `json:"html_url"`

	AgencySlug string `json:"-"`
	Attempts   int    `json:"-"`
	LastError  string `json:"-"`
}

// SearchPage is one page of search results plus the pagination facts the
// upstream reported for the whole query.
type SearchPage struct {
	Results    []Document
	TotalCount int
	TotalPages int
	HasMore    bool
}
