package postgres

import "time"

// Config holds the pool settings for the event store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns caps the pool. Each append holds one connection for its
	// batch insert, and a branch holds one per copied batch, so the cap
	// bounds how many conversations can be written at once (default: 25).
	MaxConns int32

	// MinConns keeps idle connections warm for the next append (default: 2).
	MinConns int32

	// MaxConnLifetime recycles connections (default: 5 minutes).
	MaxConnLifetime time.Duration

	// MigrateOnStart creates the conversations and events tables when New
	// runs. Otherwise `convlog migrate` must be run first.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
}
