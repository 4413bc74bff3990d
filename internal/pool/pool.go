package pool

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"torfetch/internal/model"
	"torfetch/internal/tor"
)

// Pool errors.
var (
	// ErrPoolExhausted means Acquire was called more times than
	// connections were allocated. The pool never hands out a duplicate
	// identity, so running dry is an error, not a wait.
	ErrPoolExhausted = errors.New("identity pool exhausted")

	// ErrAlreadyStarted means Start was called twice.
	ErrAlreadyStarted = errors.New("identity pool already started")
)

const (
	// defaultFillBudget bounds the pre-allocation phase. Rotation is
	// slow, roughly settle time plus a probe per identity, so the budget
	// is generous but finite.
	defaultFillBudget = 2 * time.Minute

	// maxFailuresPerSlot caps rotation failures relative to the target
	// before the fill gives up. A network that cannot produce fresh
	// identities will not start producing them by being asked harder.
	maxFailuresPerSlot = 5
)

// Rotator requests a new circuit on one daemon instance.
// *tor.Controller satisfies this.
type Rotator interface {
	Rotate(ctx context.Context, avoid map[string]struct{}, maxAttempts int) (string, error)
}

// AvoidSource supplies identities the pool must not allocate.
// *tracker.IdentityTracker satisfies this.
type AvoidSource interface {
	CooldownIdentities(cooldown time.Duration) map[string]struct{}
	FailedIdentitiesToday() map[string]struct{}
}

// Connection is one pre-allocated identity bound to its own transport.
// A Connection is exclusively owned by the pool until Acquire hands it
// to exactly one worker; it is never recycled within a run.
type Connection struct {
	// Identity is the verified exit identity of the bound circuit.
	Identity string

	// Instance is the daemon instance the circuit lives on.
	Instance model.Instance

	// Client is the SOCKS5 data-channel client bound to the instance.
	Client *tor.Client

	// HTTP issues requests through the bound circuit.
	HTTP *http.Client
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	// TargetSize is the number of identities Start aimed for.
	TargetSize int `json:"target_size"`

	// Allocated is how many connections were successfully allocated.
	Allocated int `json:"allocated"`

	// QueueSize is how many connections are still waiting for a worker.
	QueueSize int `json:"queue_size"`

	// FailedAttempts counts rotations that yielded no usable identity
	// (duplicate, unconfirmed, or rotation failure).
	FailedAttempts int `json:"failed_attempts"`
}

// Binder builds the transport bound to a freshly rotated circuit.
// Overridable in tests; the default dials the instance's SOCKS port.
type Binder func(inst model.Instance, identity string) (*Connection, error)

// Pool pre-allocates exit identities across daemon instances.
type Pool struct {
	mu sync.Mutex

	instances  []model.Instance
	rotatorFor func(inst model.Instance) Rotator
	bind       Binder
	avoid      AvoidSource

	cooldown            time.Duration
	maxRotationAttempts int
	budget              time.Duration

	started        bool
	targetSize     int
	queue          []*Connection
	seen           map[string]struct{}
	failedAttempts int

	logger *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithBinder overrides the connection binder.
func WithBinder(b Binder) Option {
	return func(p *Pool) {
		p.bind = b
	}
}

// WithAvoidSource supplies cooldown and failed-today identities to
// exclude from allocation.
func WithAvoidSource(src AvoidSource) Option {
	return func(p *Pool) {
		p.avoid = src
	}
}

// WithCooldown sets the cooldown period consulted through the avoid
// source. Defaults to model.DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		p.cooldown = d
	}
}

// WithFillBudget bounds the pre-allocation phase.
func WithFillBudget(d time.Duration) Option {
	return func(p *Pool) {
		p.budget = d
	}
}

// WithPoolLogger sets the logger. Defaults to slog.Default().
func WithPoolLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New creates a Pool that rotates through the given instances using the
// rotator factory. Instances are cycled round-robin so a multi-instance
// setup contributes independent circuits.
func New(instances []model.Instance, rotatorFor func(inst model.Instance) Rotator, userAgent string, opts ...Option) *Pool {
	p := &Pool{
		instances:           instances,
		rotatorFor:          rotatorFor,
		cooldown:            model.DefaultCooldown,
		maxRotationAttempts: model.DefaultMaxRotationAttempts,
		budget:              defaultFillBudget,
		seen:                make(map[string]struct{}),
	}
	p.bind = func(inst model.Instance, identity string) (*Connection, error) {
		client, err := tor.NewClient(inst.SocksAddr(), userAgent)
		if err != nil {
			return nil, err
		}
		return &Connection{
			Identity: identity,
			Instance: inst,
			Client:   client,
			HTTP:     client.NewHTTPClient(model.DefaultBaseTimeout),
		}, nil
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Start allocates up to targetSize unique identities. With blocking set
// it returns once the target is met or the fill budget runs out; without
// it the fill proceeds in the background and workers poll Stats or rely
// on Acquire errors. Start may be called once per Pool.
//
// Falling short of the target is not an error: the pool is best-effort,
// and a partial pool still removes contention for the workers it covers.
func (p *Pool) Start(ctx context.Context, targetSize int, blocking bool) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.targetSize = targetSize
	p.mu.Unlock()

	if !blocking {
		go p.fill(ctx, targetSize)
		return nil
	}
	p.fill(ctx, targetSize)
	return ctx.Err()
}

// fill rotates round-robin across instances until the target is met or
// the budget expires.
func (p *Pool) fill(ctx context.Context, targetSize int) {
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	p.logger.Info("pre-allocating exit identities",
		"target_size", targetSize,
		"instances", len(p.instances),
	)

	for i := 0; p.allocated() < targetSize; i++ {
		if ctx.Err() != nil {
			break
		}
		p.mu.Lock()
		failures := p.failedAttempts
		p.mu.Unlock()
		if failures >= targetSize*maxFailuresPerSlot {
			break
		}

		inst := p.instances[i%len(p.instances)]
		if err := p.allocateOne(ctx, inst); err != nil {
			p.mu.Lock()
			p.failedAttempts++
			p.mu.Unlock()
			p.logger.Debug("pool allocation attempt failed",
				"instance_id", inst.ID,
				"error", err,
			)
		}
	}

	stats := p.Stats()
	if stats.Allocated < targetSize {
		p.logger.Warn("identity pool under target",
			"target_size", targetSize,
			"allocated", stats.Allocated,
			"failed_attempts", stats.FailedAttempts,
		)
		return
	}
	p.logger.Info("identity pool ready",
		"allocated", stats.Allocated,
		"failed_attempts", stats.FailedAttempts,
	)
}

// allocateOne rotates the given instance once and, when the rotation
// lands on a fresh usable identity, binds and enqueues a connection.
func (p *Pool) allocateOne(ctx context.Context, inst model.Instance) error {
	avoid := p.avoidSet()

	identity, err := p.rotatorFor(inst).Rotate(ctx, avoid, p.maxRotationAttempts)
	if err != nil {
		return err
	}
	if identity == "" {
		// Unconfirmed rotations are fine for live fetching but useless
		// here: uniqueness cannot be guaranteed without an identity.
		return errors.New("rotation yielded unconfirmed identity")
	}

	p.mu.Lock()
	if _, dup := p.seen[identity]; dup {
		p.mu.Unlock()
		return errors.New("rotation yielded duplicate identity " + identity)
	}
	p.seen[identity] = struct{}{}
	p.mu.Unlock()

	conn, err := p.bind(inst, identity)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.queue = append(p.queue, conn)
	p.mu.Unlock()

	p.logger.Debug("pooled identity allocated",
		"identity", identity,
		"instance_id", inst.ID,
	)
	return nil
}

// avoidSet merges allocated, cooldown and failed-today identities.
func (p *Pool) avoidSet() map[string]struct{} {
	avoid := make(map[string]struct{})
	if p.avoid != nil {
		for id := range p.avoid.CooldownIdentities(p.cooldown) {
			avoid[id] = struct{}{}
		}
		for id := range p.avoid.FailedIdentitiesToday() {
			avoid[id] = struct{}{}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.seen {
		avoid[id] = struct{}{}
	}
	return avoid
}

// allocated returns how many connections were allocated so far.
func (p *Pool) allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// Acquire hands the next pre-allocated connection to the given worker.
// Each connection is handed out at most once; when the queue is empty
// Acquire returns ErrPoolExhausted rather than blocking or handing out
// a duplicate.
func (p *Pool) Acquire(workerID int) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil, ErrPoolExhausted
	}
	conn := p.queue[0]
	p.queue = p.queue[1:]

	p.logger.Debug("pooled connection acquired",
		"worker_id", workerID,
		"identity", conn.Identity,
		"instance_id", conn.Instance.ID,
	)
	return conn, nil
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		TargetSize:     p.targetSize,
		Allocated:      len(p.seen),
		QueueSize:      len(p.queue),
		FailedAttempts: p.failedAttempts,
	}
}
