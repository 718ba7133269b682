package models

// SearchResult is one web search hit
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CompanyProfile holds the descriptive metadata of a listed company.
// Empty fields mean the provider had no value.
type CompanyProfile struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	Industry        string `json:"industry"`
	Sector          string `json:"sector"`
	BusinessSummary string `json:"business_summary"`
	Website         string `json:"website"`
}

// ParsedDocument is text extracted from a document by a parser
type ParsedDocument struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Source    string `json:"source"` // parser that produced the text
}
