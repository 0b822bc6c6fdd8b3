package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/journal"
	"rollcall/internal/logger"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
)

// ErrNotOpen is returned for a workspace that was never opened or has been
// evicted.
var ErrNotOpen = errors.New("workspace not open")

// Dialer builds a Backend that authenticates with the given credential.
type Dialer func(cred *auth.Credential) Backend

// Publisher accepts commit events for the journal.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options configures a Registry.
type Options struct {
	Dial      Dialer
	Publisher Publisher

	Location         *time.Location
	Now              func() time.Time
	PageSize         int
	FetchConcurrency int
	SuccessDisplay   time.Duration

	Observer attendance.Observer
	Logger   *logrus.Entry
	// OpenChanged receives the workspace count after every open or eviction.
	OpenChanged func(n int)
}

// Registry holds the open workspaces of every operator.
type Registry struct {
	opts Options
	ctx  context.Context
	log  *logrus.Entry

	mu         sync.Mutex
	workspaces map[Key]*Workspace
}

// NewRegistry creates an empty registry. ctx bounds every background reload
// and journal publish, and should live as long as the process.
func NewRegistry(ctx context.Context, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = roster.DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.For("workspace")
	}
	return &Registry{
		opts:       opts,
		ctx:        ctx,
		log:        log,
		workspaces: make(map[Key]*Workspace),
	}
}

// Open returns the operator's workspace for a class, creating it on first
// use: the roster is fetched, a session opens on today in Viewing, and the
// persisted layer starts loading in the background.
func (r *Registry) Open(ctx context.Context, operator string, classID int64, token string) (*Workspace, error) {
	key := Key{Operator: operator, ClassID: classID}
	if ws, ok := r.lookup(key); ok {
		ws.Authorize(token)
		return ws, nil
	}

	cred := auth.NewCredential(token)
	backend := r.opts.Dial(cred)
	regs, err := backend.FetchRegistrations(ctx, classID)
	if err != nil {
		return nil, &attendance.TransportError{Op: "fetch registrations", Err: err}
	}

	log := r.log.WithField("operator", operator)
	ws := &Workspace{
		Key:      key,
		backend:  backend,
		cred:     cred,
		reloads:  r.ctx,
		now:      r.opts.Now,
		view:     roster.NewView(regs, r.opts.PageSize),
		lastUsed: r.opts.Now(),
	}
	ws.session = attendance.NewSession(attendance.Options{
		ClassID:          classID,
		Remote:           backend,
		Registrations:    regs,
		Location:         r.opts.Location,
		Now:              r.opts.Now,
		FetchConcurrency: r.opts.FetchConcurrency,
		SuccessDisplay:   r.opts.SuccessDisplay,
		Logger:           log,
		Observer:         r.opts.Observer,
		OnCommit:         r.journal(operator),
	})

	r.mu.Lock()
	if existing, ok := r.workspaces[key]; ok {
		r.mu.Unlock()
		existing.Authorize(token)
		return existing, nil
	}
	r.workspaces[key] = ws
	n := len(r.workspaces)
	r.mu.Unlock()

	r.openChanged(n)
	log.WithField("class_id", classID).WithField("registrations", len(regs)).Info("workspace opened")
	ws.session.Reload(r.ctx)
	return ws, nil
}

// Get returns an open workspace.
func (r *Registry) Get(operator string, classID int64) (*Workspace, error) {
	ws, ok := r.lookup(Key{Operator: operator, ClassID: classID})
	if !ok {
		return nil, ErrNotOpen
	}
	return ws, nil
}

// Close drops a workspace, discarding its staged edits.
func (r *Registry) Close(operator string, classID int64) bool {
	r.mu.Lock()
	key := Key{Operator: operator, ClassID: classID}
	_, ok := r.workspaces[key]
	delete(r.workspaces, key)
	n := len(r.workspaces)
	r.mu.Unlock()
	if ok {
		r.openChanged(n)
	}
	return ok
}

// Len returns the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Rollover takes every session still editing a past date out of edit mode and
// returns how many changed.
func (r *Registry) Rollover() int {
	changed := 0
	for _, ws := range r.snapshot() {
		if ws.session.Rollover() {
			changed++
		}
	}
	return changed
}

// EvictIdle drops workspaces unused for longer than ttl. Workspaces with a
// commit in flight are kept.
func (r *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := r.opts.Now().Add(-ttl)
	r.mu.Lock()
	evicted := 0
	for key, ws := range r.workspaces {
		if ws.idleSince().After(cutoff) || ws.session.State() == attendance.Saving {
			continue
		}
		delete(r.workspaces, key)
		evicted++
	}
	n := len(r.workspaces)
	r.mu.Unlock()

	if evicted > 0 {
		r.openChanged(n)
		r.log.WithField("evicted", evicted).WithField("open", n).Info("evicted idle workspaces")
	}
	return evicted
}

func (r *Registry) lookup(key Key) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[key]
	return ws, ok
}

func (r *Registry) snapshot() []*Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	return out
}

func (r *Registry) openChanged(n int) {
	if r.opts.OpenChanged != nil {
		r.opts.OpenChanged(n)
	}
}

// journal publishes each successful commit. Failures are logged only; the
// attendance service already holds the records.
func (r *Registry) journal(operator string) func(attendance.Commit) {
	return func(c attendance.Commit) {
		if r.opts.Publisher == nil {
			return
		}
		evt := journal.FromCommit(operator, c)
		log := r.log.WithField("operator", operator).WithField("class_id", c.ClassID).WithField("batch_id", evt.BatchID)
		msg, err := evt.Encode()
		if err != nil {
			log.WithError(err).Error("encode commit event")
			return
		}
		ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
		defer cancel()
		if err := r.opts.Publisher.Publish(ctx, msg); err != nil {
			log.WithError(err).Warn("publish commit event failed")
		}
	}
}
