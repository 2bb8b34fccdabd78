package reputation

import "context"

// TransactFunc mutates the loaded entities in place. Keys missing from the
// map were never persisted; inserting them creates the entity.
type TransactFunc func(current map[Key]*Entity) error

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=reputation_repository_mock.go --case=underscore --with-expecter
type Repository interface {
	Find(ctx context.Context, key Key) (*Entity, error)
	FindMany(ctx context.Context, keys []Key) (map[Key]Entity, error)
	// Transact loads the given keys under an exclusive lock, runs fn and
	// saves every entity left in the map. Either all entities are saved or none.
	Transact(ctx context.Context, keys []Key, fn TransactFunc) error
}
