package core

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/sospf/state"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrNoRequest = errors.New("no pending attach request")
)

// AttachRequest is an inbound attach waiting for the operator to accept or reject it.
type AttachRequest struct {
	Peer       *state.Peer
	Endpoint   netip.AddrPort // where the answer is sent
	ReceivedAt time.Time
	resolved   atomic.Bool
}

// claim marks the request as answered. Only the first caller gets true.
func (r *AttachRequest) claim() bool {
	return r.resolved.CompareAndSwap(false, true)
}

// RequestQueue holds inbound attach requests until they are answered or expire.
type RequestQueue struct {
	cache *ttlcache.Cache[state.Addr, *AttachRequest]
	stop  sync.Once
}

// NewRequestQueue starts a queue whose requests expire after ttl. onExpire is called once for each
// request nobody answered in time.
func NewRequestQueue(ttl time.Duration, onExpire func(req *AttachRequest)) *RequestQueue {
	cache := ttlcache.New[state.Addr, *AttachRequest](
		ttlcache.WithTTL[state.Addr, *AttachRequest](ttl),
		ttlcache.WithDisableTouchOnHit[state.Addr, *AttachRequest](),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[state.Addr, *AttachRequest]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		if req := item.Value(); req.claim() && onExpire != nil {
			onExpire(req)
		}
	})
	go cache.Start()
	return &RequestQueue{cache: cache}
}

// Add queues req, replacing an older request from the same router.
func (q *RequestQueue) Add(req *AttachRequest) {
	if old := q.cache.Get(req.Peer.Addr); old != nil {
		old.Value().claim()
	}
	q.cache.Set(req.Peer.Addr, req, ttlcache.DefaultTTL)
}

// Take removes and returns the request from addr.
func (q *RequestQueue) Take(addr state.Addr) (*AttachRequest, error) {
	item := q.cache.Get(addr)
	if item == nil {
		return nil, ErrNoRequest
	}
	q.cache.Delete(addr)
	req := item.Value()
	if !req.claim() {
		return nil, ErrNoRequest
	}
	return req, nil
}

// Oldest returns the address of the request that has waited longest.
func (q *RequestQueue) Oldest() (state.Addr, bool) {
	reqs := q.Pending()
	if len(reqs) == 0 {
		return "", false
	}
	return reqs[0].Peer.Addr, true
}

// Pending returns all requests, oldest first.
func (q *RequestQueue) Pending() []*AttachRequest {
	out := make([]*AttachRequest, 0)
	for _, item := range q.cache.Items() {
		if item.IsExpired() {
			continue
		}
		out = append(out, item.Value())
	}
	slices.SortFunc(out, func(a, b *AttachRequest) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})
	return out
}

func (q *RequestQueue) Close() {
	q.stop.Do(q.cache.Stop)
}
