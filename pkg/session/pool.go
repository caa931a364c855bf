package session

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/yourusername/chart-render-service/pkg/model"
)

// State is a session's lease state.
type State int

const (
	StateFree State = iota
	StateLeased
	StateTainted

	// StateRetired marks a session destroyed cleanly at the use-count
	// threshold, as opposed to one destroyed for a bad outcome.
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateLeased:
		return "leased"
	case StateTainted:
		return "tainted"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Outcome is what a request reports back when releasing a session.
type Outcome int

const (
	// OutcomeClean marks the session reusable: the render ran to completion
	// and the context's state is known.
	OutcomeClean Outcome = iota

	// OutcomeTainted marks the session's state unknown or known-bad; it is
	// destroyed rather than reused.
	OutcomeTainted
)

// Session is one leased execution context handle. A request borrows it for
// a single render and must release it exactly once.
type Session struct {
	ID       string
	conn     Conn
	state    State
	useCount int
}

// Conn exposes the session's execution context.
func (s *Session) Conn() Conn {
	return s.conn
}

// UseCount reports how many times this session has been leased.
func (s *Session) UseCount() int {
	return s.useCount
}

// Factory creates a fresh execution context for a new session.
type Factory func(ctx context.Context) (Conn, error)

// Stats is a snapshot of pool counters, exposed on /health and used by
// tests to verify that input errors never consume capacity.
type Stats struct {
	Capacity  int   `json:"capacity"`
	Open      int   `json:"open"`
	Free      int   `json:"free"`
	Leased    int   `json:"leased"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
	Leases    int64 `json:"leases"`
	Exhausted int64 `json:"exhausted"`
}

// Pool owns a bounded set of sessions. Leases are exclusive; callers beyond
// the fixed ceiling wait on Acquire until a slot frees or their context
// deadline fires. The ceiling is never exceeded: starvation surfaces as
// backpressure, not as extra browser contexts.
type Pool struct {
	factory  Factory
	capacity int
	maxUses  int

	// slots holds one token per concurrently-leasable session. Waiting on
	// the channel gives first-ready-first-served ordering without blocking
	// releases.
	slots chan struct{}

	mu        sync.Mutex
	free      []*Session
	open      int
	leased    int
	created   int64
	destroyed int64
	leases    int64
	exhausted int64
	closed    bool
}

// DefaultMaxUses bounds how many renders one session may serve before it is
// destroyed and replaced, limiting DOM and memory drift from repeated
// untrusted content.
const DefaultMaxUses = 32

// NewPool builds a pool with a fixed capacity ceiling. Sessions are created
// lazily up to the ceiling.
func NewPool(capacity, maxUses int, factory Factory) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if maxUses < 1 {
		maxUses = DefaultMaxUses
	}
	return &Pool{
		factory:  factory,
		capacity: capacity,
		maxUses:  maxUses,
		slots:    make(chan struct{}, capacity),
	}
}

// Acquire leases a session, blocking until one is available or ctx expires.
// On expiry it fails with PoolExhausted without touching any session.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.mu.Lock()
		p.exhausted++
		p.mu.Unlock()
		return nil, model.E(model.KindPoolExhausted, "no render session available within the acquire timeout")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, model.E(model.KindInternal, "session pool is closed")
	}
	var s *Session
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if s == nil {
		conn, err := p.factory(ctx)
		if err != nil {
			<-p.slots
			return nil, model.Wrap(model.KindInternal, err, "failed to create render session")
		}
		s = &Session{ID: uuid.NewString(), conn: conn}
		p.mu.Lock()
		p.open++
		p.created++
		p.mu.Unlock()
		log.Printf("[POOL] Created session %s (%d/%d open)", s.ID, p.openCount(), p.capacity)
	}

	p.mu.Lock()
	s.state = StateLeased
	s.useCount++
	p.leased++
	p.leases++
	p.mu.Unlock()
	return s, nil
}

// Release returns a leased session. Clean outcomes below the use threshold
// put it back on the free list; anything else destroys it. The freed slot
// is replaced lazily by the next Acquire.
func (p *Pool) Release(s *Session, outcome Outcome) {
	if s == nil {
		return
	}

	p.mu.Lock()
	p.leased--
	reuse := outcome == OutcomeClean && s.useCount < p.maxUses && !p.closed
	if reuse {
		s.state = StateFree
		p.free = append(p.free, s)
	} else {
		if outcome == OutcomeTainted {
			s.state = StateTainted
		} else {
			s.state = StateRetired
		}
		p.open--
		p.destroyed++
	}
	p.mu.Unlock()

	if !reuse {
		if err := s.conn.Close(); err != nil {
			log.Printf("[POOL] WARNING: failed to close session %s: %v", s.ID, err)
		}
		if outcome == OutcomeTainted {
			log.Printf("[POOL] Destroyed tainted session %s after %d uses", s.ID, s.useCount)
		} else {
			log.Printf("[POOL] Retired session %s after %d uses", s.ID, s.useCount)
		}
	}

	<-p.slots
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:  p.capacity,
		Open:      p.open,
		Free:      len(p.free),
		Leased:    p.leased,
		Created:   p.created,
		Destroyed: p.destroyed,
		Leases:    p.leases,
		Exhausted: p.exhausted,
	}
}

func (p *Pool) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Close destroys all free sessions and rejects further leases. Sessions
// still leased are destroyed by their eventual Release.
func (p *Pool) Close() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.open -= len(free)
	p.destroyed += int64(len(free))
	p.closed = true
	p.mu.Unlock()

	for _, s := range free {
		if err := s.conn.Close(); err != nil {
			log.Printf("[POOL] WARNING: failed to close session %s during shutdown: %v", s.ID, err)
		}
	}
}
