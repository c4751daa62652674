package replication

import "context"

// IdentityMap stores the local to remote identity bindings
type IdentityMap interface {
	// Lookup returns the remote id bound to a local entity
	Lookup(ctx context.Context, t EntityType, id LocalID) (RemoteID, bool, error)
	// LookupLocal returns the local entity bound to a remote id
	LookupLocal(ctx context.Context, t EntityType, id RemoteID) (LocalID, bool, error)
	// Bind records the binding. Returns ErrIdentityConflict when either side
	// is already bound to a different counterpart.
	Bind(ctx context.Context, t EntityType, local LocalID, remote RemoteID) error
	// Unbind removes the binding of a local entity, if any
	Unbind(ctx context.Context, t EntityType, id LocalID) error
}

// LocalStore is the record storage primitive of the local system
type LocalStore interface {
	// Create persists records and their children in one transaction
	Create(ctx context.Context, records []*Record) error
	// Update merges values into the given records
	Update(ctx context.Context, t EntityType, ids []LocalID, values Values) ([]*Record, error)
	// Delete removes records and their children, returning everything removed
	Delete(ctx context.Context, t EntityType, ids []LocalID) ([]*Record, error)
	// Get loads one record with its children
	Get(ctx context.Context, t EntityType, id LocalID) (*Record, error)
	// FindByIDs loads several records of one type
	FindByIDs(ctx context.Context, t EntityType, ids []LocalID) ([]*Record, error)
	// ExistsByName reports whether another record has the same case-insensitive name
	ExistsByName(ctx context.Context, t EntityType, nameKey, scopeKey string, exclude LocalID) (bool, error)
}

// Gateway performs procedure calls against the remote object model
type Gateway interface {
	Search(ctx context.Context, model string, domain Domain, limit int) ([]RemoteID, error)
	Create(ctx context.Context, model string, values Values) (RemoteID, error)
	Write(ctx context.Context, model string, ids []RemoteID, values Values) error
	Unlink(ctx context.Context, model string, ids []RemoteID) error
}

// Dialer opens a Gateway for a given configuration
type Dialer interface {
	Dial(ctx context.Context, cfg SyncConfig) (Gateway, error)
}

// ConfigProvider reads the persisted sync configuration
type ConfigProvider interface {
	SyncConfig(ctx context.Context) (SyncConfig, error)
}

// ConfigWriter persists the sync configuration
type ConfigWriter interface {
	SaveSyncConfig(ctx context.Context, cfg SyncConfig) error
}

// Lease is a held entity lock
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes replication of a single entity across workers
type Locker interface {
	Lock(ctx context.Context, key string) (Lease, error)
}
