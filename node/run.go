package node

import (
	"time"

	"golang.org/x/net/context"
)

// Functions

// Round gossips once with every peer of s and persists
// the result. Failing peers are skipped. It returns the
// number of peers that could not be reached and the
// outcome of persisting.
func Round(ctx context.Context, s Service) (int, error) {

	failed := 0

	for _, peer := range s.Peers() {

		if ctx.Err() != nil {
			break
		}

		if err := s.Gossip(ctx, peer); err != nil {
			failed++
		}
	}

	return failed, s.Persist()
}

// Run executes a gossip round every interval until ctx
// is done. It then persists the replica a last time and
// returns the outcome of that. A round that cannot
// persist stops Run with its error.
func Run(ctx context.Context, s Service, interval time.Duration) error {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {

		select {

		case <-ctx.Done():
			return s.Persist()

		case <-ticker.C:
			if _, err := Round(ctx, s); err != nil {
				return err
			}
		}
	}
}
