package index

// PageIndex defines the page indexing operations consumers depend on.
type PageIndex interface {
	UpsertPage(p PageRow, body string) error
	DeletePage(id string) error
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
