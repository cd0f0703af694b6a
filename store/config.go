package store

// Config holds configuration for the Store.
type Config struct {
	// ObjectTable is the name of the table holding every object.
	// Its partition key is the string attribute "object_id".
	// Default: "lattice_objects"
	ObjectTable string

	// IdentityIndex is the global secondary index keyed by "identity_key".
	// When empty, identity lookups scan the table instead of querying.
	// Default: "identity_key-index"
	IdentityIndex string

	// MaxTransactItems is the number of writes grouped into one
	// TransactWriteItems call. Each call is atomic; a save spanning more
	// items is split into several calls.
	// Default: 100
	// Max: 100 (DynamoDB limit)
	MaxTransactItems int

	// FetchConcurrency is the number of identity queries run in parallel.
	// Default: 8
	// Max: 64
	FetchConcurrency int

	// MaxLoadRetries is the number of times keys left unprocessed by
	// BatchGetItem are requested again, with exponential backoff.
	// Default: 5
	// Max: 10
	MaxLoadRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ObjectTable:      "lattice_objects",
		IdentityIndex:    "identity_key-index",
		MaxTransactItems: 100,
		FetchConcurrency: 8,
		MaxLoadRetries:   5,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ObjectTable == "" {
		c.ObjectTable = "lattice_objects"
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
	if c.FetchConcurrency < 1 {
		c.FetchConcurrency = 1
	}
	if c.FetchConcurrency > 64 {
		c.FetchConcurrency = 64
	}
	if c.MaxLoadRetries < 0 {
		c.MaxLoadRetries = 0
	}
	if c.MaxLoadRetries > 10 {
		c.MaxLoadRetries = 10
	}
}
