package index

// ArticleIndex defines the catalog operations used by the status surfaces.
// Consumers depend on this interface rather than the concrete *DB type.
type ArticleIndex interface {
	Upsert(r ArticleRow) error
	Delete(area, path string) error
	GetChecksum(area, path string) (string, error)
	AllChecksums(area string) (map[string]string, error)
	Count(area string) (int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies ArticleIndex at compile time.
var _ ArticleIndex = (*DB)(nil)
