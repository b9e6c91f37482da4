package model

type Record struct {
	ID          string    `json:"id" db:"id"`
	Source      string    `json:"source" db:"source"`
	ChunkIndex  int       `json:"chunk_index" db:"chunk_index"`
	StartOffset int       `json:"start_offset" db:"start_offset"`
	Content     string    `json:"content" db:"content"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Embedding   []float32 `json:"-" db:"-"`
	Ctime       int64     `json:"ctime" db:"ctime"`
}

// Match is a stored record with its relevance score in [0, 1].
type Match struct {
	Record *Record `json:"record"`
	Score  float64 `json:"score"`
}

type SourceCount struct {
	Source string `json:"source" db:"source"`
	Count  int    `json:"count" db:"cnt"`
}

type Stats struct {
	Table   string        `json:"table"`
	Total   int           `json:"total"`
	Sources []SourceCount `json:"sources"`
}

type IngestReport struct {
	Path     string `json:"path"`
	Files    int    `json:"files"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Segments int    `json:"segments"`
	Inserted int    `json:"inserted"`
	Existing int    `json:"existing"`
	Pruned   int    `json:"pruned"`
	Error    string `json:"error,omitempty"`
}
