//go:build sqlite

package storage

const defaultStoreKind = "sqlite"

func newSQLiteStore(path string) (Store, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	return NewSQLiteStore(path), nil
}
