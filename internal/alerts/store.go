package alerts

import "context"

// Store is implemented by a persistence layer holding one Record per Key.
// Load returns nil, nil when no record exists yet.
type Store interface {
	Load(ctx context.Context, key Key) (*Record, error)
	Save(ctx context.Context, key Key, rec Record) error
	LoadAll(ctx context.Context) (map[Key]Record, error)
	Delete(ctx context.Context, key Key) error
}
