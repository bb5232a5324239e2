package flakeanalyticslib

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// DefaultCacheTTL is the default snapshot refresh interval.
const DefaultCacheTTL = 10 * time.Minute

// SnapshotCache holds the process-wide dataset snapshot. A snapshot is never
// mutated after load; a reload replaces it atomically, so readers see either
// the old or the new snapshot in full. When a reload fails and a previous
// snapshot exists, the stale snapshot is served and flagged rather than
// blocking the whole dashboard.
type SnapshotCache struct {
	client EventClient
	ttl    time.Duration
	clock  clock.PassiveClock

	lock    sync.Mutex
	current *flakeanalyticsapi.Snapshot
}

func NewSnapshotCache(client EventClient, ttl time.Duration, clock clock.PassiveClock) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SnapshotCache{
		client: client,
		ttl:    ttl,
		clock:  clock,
	}
}

// Get returns the current snapshot, reloading it when the TTL has expired.
// stale is true when the TTL has expired but the reload failed and an older
// snapshot is being served instead.
func (c *SnapshotCache) Get(ctx context.Context) (snapshot *flakeanalyticsapi.Snapshot, stale bool, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current != nil && c.clock.Now().Sub(c.current.LoadedAt) <= c.ttl {
		return c.current, false, nil
	}

	loaded, err := c.load(ctx)
	if err != nil {
		if c.current == nil {
			return nil, false, err
		}
		logrus.WithError(err).WithField("loadedAt", c.current.LoadedAt).Warn("snapshot reload failed, serving stale data")
		return c.current, true, nil
	}
	c.current = loaded
	return c.current, false, nil
}

// Refresh forces a reload regardless of the TTL, replacing the cached
// snapshot on success and keeping the old one on failure.
func (c *SnapshotCache) Refresh(ctx context.Context) (*flakeanalyticsapi.Snapshot, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	loaded, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.current = loaded
	return c.current, nil
}

// Age reports how long ago the current snapshot was loaded; zero when no
// snapshot has been loaded yet.
func (c *SnapshotCache) Age() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.current == nil {
		return 0
	}
	return c.clock.Now().Sub(c.current.LoadedAt)
}

func (c *SnapshotCache) load(ctx context.Context) (*flakeanalyticsapi.Snapshot, error) {
	events, err := c.client.ListFailureEvents(ctx)
	if err != nil {
		return nil, err
	}
	return flakeanalyticsapi.NewSnapshot(events, c.clock.Now()), nil
}
