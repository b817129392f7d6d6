package index

// History defines the fetch history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type History interface {
	Record(r FetchRow) error
	Get(path string) (*FetchRow, error)
	List(limit, offset int, status string) ([]FetchRow, int, error)
	Search(query string, limit int) ([]FetchRow, error)
	Delete(path string) error
	Close() error
}

// Verify *DB satisfies History at compile time.
var _ History = (*DB)(nil)
