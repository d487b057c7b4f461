package directory

import "context"

// Store loads and saves the whole directory. There is no caching; callers
// reload immediately before every mutation.
type Store interface {
	// Init prepares the backing storage on first use. It must never
	// discard existing records.
	Init(ctx context.Context) error
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}
