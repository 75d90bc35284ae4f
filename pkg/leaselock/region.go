package leaselock

import (
	"context"
	"time"
)

// RegionLocker adapts the lease client to the pipeline's region locking:
// each graph region maps to one lease key, and acquisition waits for the
// current holder instead of failing.
type RegionLocker struct {
	client *Client
	opts   Options
}

// NewRegionLocker builds a waiting locker with a TTL sized for long
// community-detection passes.
func NewRegionLocker(client *Client) *RegionLocker {
	return &RegionLocker{
		client: client,
		opts: Options{
			TTL:          10 * time.Minute,
			Wait:         true,
			WaitInterval: time.Second,
			WaitJitter:   250 * time.Millisecond,
		},
	}
}

func (r *RegionLocker) AcquireRegion(ctx context.Context, region string) (func(), error) {
	lease, err := r.client.Acquire(ctx, "graph_region:"+region, r.opts)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lease.Release(context.Background())
	}, nil
}
