package translation

import (
	"context"

	"github.com/MimeLyc/dualsub/pkg/log"
	"golang.org/x/sync/singleflight"
)

type lookupHit struct {
	record Record
	tier   Tier
	found  bool
}

// Lookups collapses concurrent persistent-store round trips for the same key.
// Sessions that share stores should share one Lookups.
type Lookups struct {
	group singleflight.Group
}

func NewLookups() *Lookups {
	return &Lookups{}
}

// find consults the remote tier, then the local tier. Store failures are
// logged and treated as misses.
func (l *Lookups) find(ctx context.Context, key Key, remote RemoteStore, local LocalStore) lookupHit {
	v, _, _ := l.group.Do(key.Hash(), func() (any, error) {
		if remote != nil {
			rec, ok, err := remote.Find(ctx, key)
			switch {
			case err != nil:
				log.Warn("Remote lookup failed for %q: %v", key.Text, err)
			case ok:
				return lookupHit{record: rec, tier: TierRemote, found: true}, nil
			}
		}
		if local != nil {
			rec, ok, err := local.Get(ctx, key)
			switch {
			case err != nil:
				log.Warn("Local lookup failed for %q: %v", key.Text, err)
			case ok:
				return lookupHit{record: rec, tier: TierLocal, found: true}, nil
			}
		}
		return lookupHit{}, nil
	})
	return v.(lookupHit)
}
