package realtime

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// FetchFunc returns the authoritative notification list from the REST API.
type FetchFunc func(ctx context.Context) ([]Notification, error)

// EmitFunc receives each net-new notification, oldest first.
type EmitFunc func(Notification)

// SyncFunc reconciles an auxiliary stream during a tick. The client uses it
// to refetch subscribed conversations so missed chat messages surface too.
type SyncFunc func(ctx context.Context)

const (
	defaultPollInterval = 30 * time.Second
	// pollerSeenLimit bounds the reconciled-id working set.
	pollerSeenLimit = 1024
)

// Poller is the polling fallback scheduler. It periodically fetches the
// authoritative notification list, reconciles it against the identifiers it
// has already seen, and emits only the net-new items through the same
// delivery path as live push. It is the correctness backstop while the
// transport is down: repeated ticks converge the client to the server state.
type Poller struct {
	fetch    FetchFunc
	emit     EmitFunc
	sync     SyncFunc
	interval time.Duration

	inFlight atomic.Bool
	mu       sync.Mutex
	seen     map[int64]struct{}
	order    []int64
}

// NewPoller constructs a Poller. sync may be nil; a non-positive interval
// selects the default.
func NewPoller(fetch FetchFunc, emit EmitFunc, sync SyncFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		fetch:    fetch,
		emit:     emit,
		sync:     sync,
		interval: interval,
		seen:     make(map[int64]struct{}),
	}
}

// Run ticks on the interval and on every resume signal (typically the app
// returning to the foreground) until the context is cancelled. resume may be
// nil when no foreground trigger exists.
func (p *Poller) Run(ctx context.Context, resume <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		case _, ok := <-resume:
			if !ok {
				resume = nil
				continue
			}
			p.Tick(ctx)
		}
	}
}

// Tick runs one fetch-and-reconcile cycle plus the conversation sync. A tick
// arriving while a previous one is still in flight is skipped, not queued;
// the return value reports whether the tick ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer p.inFlight.Store(false)

	p.reconcileNotifications(ctx)
	if p.sync != nil {
		p.sync(ctx)
	}
	return true
}

// reconcileNotifications emits every fetched notification not seen before,
// oldest first. A fetch failure is swallowed and leaves the seen set
// untouched, so nothing is misreported as new on the next successful tick.
func (p *Poller) reconcileNotifications(ctx context.Context) {
	list, err := p.fetch(ctx)
	if err != nil {
		log.Printf("realtime: poll tick failed: %v", err)
		return
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	p.mu.Lock()
	fresh := make([]Notification, 0)
	for _, n := range list {
		if _, ok := p.seen[n.ID]; ok {
			continue
		}
		p.seen[n.ID] = struct{}{}
		p.order = append(p.order, n.ID)
		for len(p.order) > pollerSeenLimit {
			delete(p.seen, p.order[0])
			p.order = p.order[1:]
		}
		fresh = append(fresh, n)
	}
	p.mu.Unlock()

	for _, n := range fresh {
		p.emit(n)
	}
}
