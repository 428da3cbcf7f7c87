// Package badgerdb keeps the Account Store and Message Store in an embedded
// badger database. Writes are synced before they return.
package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Open opens (or creates) the database at dir with synchronous writes.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", dir, err)
	}
	return db, nil
}
