package models

// Media describes an uploaded file. URL is served by the API and redirects
// to object storage.
type Media struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	FileName string `json:"filename"`
}
