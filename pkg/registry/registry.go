// Package registry holds the tracked coins as versioned, immutable snapshots.
// All writes are serialized through one writer goroutine started by Run.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"memefolio/pkg/metrics"
	"memefolio/pkg/models"

	"github.com/rs/zerolog"
)

var (
	// ErrVersionConflict means another write landed after the caller's snapshot.
	ErrVersionConflict = errors.New("registry version conflict")
	ErrDuplicateID     = errors.New("duplicate coin id")
)

// Snapshot is one published state of the registry. It is never mutated after publish.
type Snapshot struct {
	Version   uint64        `json:"version"`
	Coins     []models.Coin `json:"coins"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Coins)
}

// Find returns the coin with id.
func (s *Snapshot) Find(id string) (models.Coin, bool) {
	if s == nil {
		return models.Coin{}, false
	}
	id = strings.ToLower(strings.TrimSpace(id))
	for _, c := range s.Coins {
		if c.ID == id {
			return c, true
		}
	}
	return models.Coin{}, false
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return &Snapshot{Coins: []models.Coin{}}
	}
	return &Snapshot{Version: s.Version, Coins: copyCoins(s.Coins), UpdatedAt: s.UpdatedAt}
}

// Coin holds only value fields, so a slice copy is a deep copy.
func copyCoins(coins []models.Coin) []models.Coin {
	out := make([]models.Coin, len(coins))
	copy(out, coins)
	return out
}

// Mutation transforms a private copy of the coins and returns the new list.
type Mutation func(coins []models.Coin) ([]models.Coin, error)

type writeRequest struct {
	apply    Mutation
	expected *uint64
	reply    chan writeResult
}

type writeResult struct {
	published bool
	err       error
}

type Registry struct {
	current atomic.Pointer[Snapshot]
	writes  chan writeRequest
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	hooksMu sync.RWMutex
	hooks   []func(*Snapshot)
}

func New(log zerolog.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{
		writes:  make(chan writeRequest),
		log:     log.With().Str("component", "registry").Logger(),
		metrics: m,
		now:     time.Now,
	}
	r.current.Store(&Snapshot{Coins: []models.Coin{}})
	return r
}

// Run is the single writer. It returns when ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.writes:
			published, err := r.apply(req)
			req.reply <- writeResult{published: published, err: err}
		}
	}
}

func (r *Registry) apply(req writeRequest) (bool, error) {
	cur := r.current.Load()
	if req.expected != nil && *req.expected != cur.Version {
		r.metrics.Conflict()
		return false, fmt.Errorf("%w: expected %d, current %d", ErrVersionConflict, *req.expected, cur.Version)
	}

	next, err := req.apply(copyCoins(cur.Coins))
	if err != nil {
		return false, err
	}
	if next == nil {
		next = []models.Coin{}
	}
	if err := checkUnique(next); err != nil {
		return false, err
	}
	if reflect.DeepEqual(cur.Coins, next) {
		return false, nil
	}

	snap := &Snapshot{Version: cur.Version + 1, Coins: copyCoins(next), UpdatedAt: r.now().UTC()}
	r.current.Store(snap)
	r.metrics.Published(snap.Version, len(snap.Coins))
	r.log.Debug().Uint64("version", snap.Version).Int("coins", len(snap.Coins)).Msg("snapshot published")

	r.hooksMu.RLock()
	hooks := r.hooks
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		h(snap.clone())
	}
	return true, nil
}

func checkUnique(coins []models.Coin) error {
	seen := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func (r *Registry) submit(ctx context.Context, req writeRequest) (bool, error) {
	req.reply = make(chan writeResult, 1)
	select {
	case r.writes <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	// The writer always answers once it has taken the request.
	res := <-req.reply
	return res.published, res.err
}

// Update applies fn on the writer goroutine and publishes only when the coins changed.
func (r *Registry) Update(ctx context.Context, fn Mutation) (bool, error) {
	return r.submit(ctx, writeRequest{apply: fn})
}

// CompareAndSwap replaces the coins only if the registry is still at expected.
func (r *Registry) CompareAndSwap(ctx context.Context, expected uint64, coins []models.Coin) (bool, error) {
	next := copyCoins(coins)
	return r.submit(ctx, writeRequest{
		expected: &expected,
		apply:    func([]models.Coin) ([]models.Coin, error) { return next, nil },
	})
}

// Admit appends coin unless a coin with the same id exists.
func (r *Registry) Admit(ctx context.Context, coin models.Coin) (bool, error) {
	coin.ID = strings.ToLower(strings.TrimSpace(coin.ID))
	if coin.ID == "" {
		return false, errors.New("admit: coin has no id")
	}
	return r.Update(ctx, func(coins []models.Coin) ([]models.Coin, error) {
		for _, c := range coins {
			if c.ID == coin.ID {
				return coins, nil
			}
		}
		return append(coins, coin), nil
	})
}

// OnPublish registers fn to run on the writer goroutine after every publish. fn must not block.
func (r *Registry) OnPublish(fn func(*Snapshot)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Snapshot returns a copy of the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load().clone()
}

func (r *Registry) Get(id string) (models.Coin, bool) {
	return r.current.Load().Find(id)
}

func (r *Registry) Len() int {
	return r.current.Load().Len()
}

func (r *Registry) Version() uint64 {
	return r.current.Load().Version
}
