// Package usernamegate holds forum writes until the current user has
// chosen a username, then replays the blocked write once.
package usernamegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"studiodesk/internal/apiclient"
	"studiodesk/internal/models"
	"studiodesk/internal/validation"
)

// State of the gate.
type State int

const (
	Unknown State = iota
	Checking
	HasUsername
	NeedsUsername
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Checking:
		return "checking"
	case HasUsername:
		return "has-username"
	case NeedsUsername:
		return "needs-username"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrUsernameRequired is returned for a write parked until a username is set.
var ErrUsernameRequired = errors.New("username setup required")

// ErrStateUnknown is returned when a write cannot tell whether the user has
// a username yet.
var ErrStateUnknown = errors.New("username state unknown")

// Action is a gated forum write.
type Action func(ctx context.Context) error

// API is the username part of the HTTP client.
type API interface {
	UsernameStatus(ctx context.Context) (*models.UsernameStatus, error)
	SetUsername(ctx context.Context, username string) (*models.UsernameStatus, error)
}

// Gate is safe for concurrent use. Callbacks run outside its lock.
type Gate struct {
	api      API
	logger   *slog.Logger
	onPrompt func()

	mu       sync.Mutex
	state    State
	username string
	pending  Action
	checking *lookup
}

// lookup is one shared UsernameStatus call; state and err are set before
// done is closed.
type lookup struct {
	done  chan struct{}
	state State
	err   error
}

type Option func(*Gate)

// WithPrompt registers the callback that shows the username prompt.
func WithPrompt(fn func()) Option {
	return func(g *Gate) { g.onPrompt = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func New(api API, opts ...Option) *Gate {
	g := &Gate{api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Username returns the username once known.
func (g *Gate) Username() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.username
}

// HasPending reports whether a write is parked.
func (g *Gate) HasPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Check looks the username up. Concurrent callers share one lookup and
// its outcome. A failed lookup returns the gate to Unknown.
func (g *Gate) Check(ctx context.Context) (State, error) {
	g.mu.Lock()
	if l := g.checking; l != nil {
		g.mu.Unlock()
		select {
		case <-l.done:
			return l.state, l.err
		case <-ctx.Done():
			return Unknown, ctx.Err()
		}
	}
	l := &lookup{done: make(chan struct{})}
	g.checking = l
	g.state = Checking
	g.mu.Unlock()

	status, err := g.api.UsernameStatus(ctx)

	g.mu.Lock()
	defer func() {
		l.state = g.state
		g.checking = nil
		g.mu.Unlock()
		close(l.done)
	}()
	if err != nil {
		g.state = Unknown
		l.err = fmt.Errorf("username lookup: %w", err)
		return Unknown, l.err
	}
	if status.HasUsername {
		g.state = HasUsername
		g.username = status.Username
	} else {
		g.state = NeedsUsername
	}
	return g.state, nil
}

// Do runs action when the user has a username. In NeedsUsername the action
// is parked (replacing any earlier one), the prompt is shown and
// ErrUsernameRequired is returned without touching the network. A server
// USERNAME_REQUIRED answer parks the action the same way.
func (g *Gate) Do(ctx context.Context, action Action) error {
	state := g.State()
	if state == Unknown || state == Checking {
		var err error
		if state, err = g.Check(ctx); err != nil {
			return err
		}
	}

	switch state {
	case NeedsUsername:
		g.park(action)
		return ErrUsernameRequired
	case HasUsername:
	default:
		return ErrStateUnknown
	}

	err := action(ctx)
	if apiclient.IsCode(err, models.CodeUsernameRequired) {
		g.mu.Lock()
		g.state = NeedsUsername
		g.username = ""
		g.mu.Unlock()
		g.park(action)
		return ErrUsernameRequired
	}
	return err
}

func (g *Gate) park(action Action) {
	g.mu.Lock()
	g.pending = action
	prompt := g.onPrompt
	g.mu.Unlock()

	if prompt != nil {
		prompt()
	}
}

// Dismiss drops the parked action, e.g. when the prompt is closed.
func (g *Gate) Dismiss() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}

// SetUsername validates name locally, claims it, and replays the parked
// action exactly once. A failed replay is returned wrapped; the username is
// still set.
func (g *Gate) SetUsername(ctx context.Context, name string) (*models.UsernameStatus, error) {
	name = validation.NormalizeUsername(name)
	if err := validation.ValidateUsername(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	status, err := g.api.SetUsername(ctx, name)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.state = HasUsername
	g.username = status.Username
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	if pending == nil {
		return status, nil
	}
	g.logger.InfoContext(ctx, "replaying write held for username setup",
		slog.String("username", status.Username))
	if err := pending(ctx); err != nil {
		return status, fmt.Errorf("replay pending action: %w", err)
	}
	return status, nil
}
