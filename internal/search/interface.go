package search

import "github.com/pders01/lensbot/internal/storage"

// Searcher defines the history search API used by the CLI and monitor.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
	SearchIdentity(identity, query string, limit int) ([]*Result, error)
	Close() error
}

// PostListener can be implemented by search engines that maintain an
// external index and want to be told about every confirmed post.
type PostListener interface {
	OnPostPublished(post *storage.PostRecord)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}

// PostSource is the part of the store the engines read from.
type PostSource interface {
	GetPost(id string) (*storage.PostRecord, error)
	GetPosts(identity string, limit int) ([]*storage.PostRecord, error)
}

// Result is one matching post.
type Result struct {
	Post    *storage.PostRecord
	Score   float64
	Matches []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "caption", "topic", "photographer"
	Text   string
	Weight float64
}

// Open returns a bleve-backed engine when indexPath is set and the
// scanning engine otherwise. indexPath ":memory:" keeps the index in memory.
func Open(src PostSource, indexPath string) (Searcher, error) {
	if indexPath == "" {
		return NewEngine(src), nil
	}
	return NewBleveEngine(src, indexPath)
}
