package postgres

import (
	"github.com/elitan/dbterra/database"
)

// Driver implements database.Driver for PostgreSQL
type Driver struct {
	*Introspector
}

// NewDriver creates a new PostgreSQL driver
func NewDriver() *Driver {
	return &Driver{
		Introspector: NewIntrospector(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "postgres"
}

// Capabilities returns what PostgreSQL can express
func (d *Driver) Capabilities() database.Capabilities {
	return database.Capabilities{
		AdvisoryLocks:     true,
		ConcurrentIndexes: true,
		AlterColumnType:   true,
		Schemas:           true,
		Extensions:        true,
		Enums:             true,
		MaterializedViews: true,
		ViewOptions:       true,
		DropTableCascade:  true,
	}
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
