package sqlite

import (
	"github.com/elitan/dbterra/database"
)

// Driver implements database.Driver for SQLite
type Driver struct {
	*Introspector
}

// NewDriver creates a new SQLite driver
func NewDriver() *Driver {
	return &Driver{
		Introspector: NewIntrospector(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "sqlite"
}

// Capabilities returns what SQLite can express. Column type changes
// would require table recreation, so the differ never emits them here.
func (d *Driver) Capabilities() database.Capabilities {
	return database.Capabilities{
		AdvisoryLocks:     false,
		ConcurrentIndexes: false,
		AlterColumnType:   false,
		Schemas:           false,
		Extensions:        false,
		Enums:             false,
		MaterializedViews: false,
		ViewOptions:       false,
		DropTableCascade:  false,
	}
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
