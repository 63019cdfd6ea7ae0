// Package migrations holds the schema of the span store.
package migrations

import (
	"gofr.dev/pkg/gofr/migration"
)

// All returns the migrations keyed by their version.
func All() map[int64]migration.Migrate {
	return map[int64]migration.Migrate{
		1708322067: createTables(),
		1708322068: createIndices(),
	}
}
