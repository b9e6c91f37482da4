package model

// Document is a loaded text file. Source is a local path or an s3:// url.
type Document struct {
	Source   string `json:"source"`
	Content  string `json:"content"`
	Markdown bool   `json:"markdown"`
}

// Segment is a substring of a document. Start and End are rune offsets.
type Segment struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}
