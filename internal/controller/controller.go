package controller

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/engine"
	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/syncerr"
	"github.com/roach88/peersync/internal/transport"
)

// Callback receives every status change of a replicator's primary engine.
// ctx is the opaque value passed in Params.Context.
//
// Callbacks arrive on engine goroutines. They must not block for long.
type Callback func(r *Replicator, st status.Status, ctx any)

// Params describes the replication to create. Exactly one of Remote and
// OtherDB selects the target.
type Params struct {
	// DB is the local database. The replicator opens its own handle to it;
	// the caller keeps ownership of DB.
	DB *store.Store

	// Remote is the server to replicate with, and RemoteDBName the database
	// name on that server. Ignored when OtherDB is set.
	Remote       *address.Address
	RemoteDBName string

	// OtherDB selects local-to-local replication with another database.
	OtherDB *store.Store

	Push status.Mode
	Pull status.Mode

	OnStatusChanged Callback

	// Context is handed back to OnStatusChanged. The replicator never
	// inspects it.
	Context any
}

// Replicator supervises one replication session: a primary engine against
// the target and, for local-to-local replication, a passive secondary
// engine against the other database.
//
// Lifetime: the replicator holds two references when New returns, one for
// the caller (dropped by Free) and one for itself (dropped once every
// engine it owns has stopped). Done is closed when both are gone.
//
// Thread-safety: all methods are safe for concurrent use. Status changes
// from the two engines may arrive concurrently.
type Replicator struct {
	id       string
	registry *Registry
	logger   *slog.Logger

	primary   *engine.Engine
	secondary *engine.Engine

	callback atomic.Pointer[Callback]
	context  any

	status     atomic.Pointer[status.Status]
	otherLevel atomic.Int32

	refs     atomic.Int32
	released atomic.Bool
	freed    atomic.Bool
	done     chan struct{}
}

type config struct {
	registry   *Registry
	messages   *syncerr.MessageLog
	logger     *slog.Logger
	provider   transport.Provider
	loopback   *transport.LoopbackProvider
	engineOpts []engine.Option
	ids        IDGenerator
}

// Option configures New.
type Option func(*config)

// WithRegistry sets the registry the replicator is tracked in.
// Default: DefaultRegistry().
func WithRegistry(g *Registry) Option {
	return func(c *config) { c.registry = g }
}

// WithMessageLog sets the log error messages are recorded in.
// Default: syncerr.DefaultLog().
func WithMessageLog(l *syncerr.MessageLog) Option {
	return func(c *config) { c.messages = l }
}

// WithLogger sets the logger for the replicator and its engines.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithProvider sets the transport provider for remote replication.
// Default: a transport.WebSocketProvider.
func WithProvider(p transport.Provider) Option {
	return func(c *config) { c.provider = p }
}

// WithLoopback sets the provider that splices local-to-local transports.
// Default: a process-wide LoopbackProvider.
func WithLoopback(p *transport.LoopbackProvider) Option {
	return func(c *config) { c.loopback = p }
}

// WithEngineOptions passes options through to every engine created.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithIDGenerator sets the session ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *config) { c.ids = g }
}

var sharedLoopback = transport.NewLoopbackProvider()

// New validates p, opens independent database handles and starts the
// replication. The returned error is always a syncerr.Error:
//   - InvalidParameter if push and pull are both disabled, DB is nil, the
//     target is DB itself, no target is given or the remote scheme is
//     unsupported
//   - the database's own error if a handle cannot be re-opened
//   - UnexpectedError if the engines could not be constructed
//
// On error no replicator exists and nothing needs to be freed.
func New(p Params, opts ...Option) (r *Replicator, err error) {
	cfg := config{
		registry: defaultRegistry,
		messages: syncerr.DefaultLog(),
		logger:   slog.Default(),
		loopback: sharedLoopback,
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.provider == nil {
		cfg.provider = &transport.WebSocketProvider{}
	}
	invalid := func(msg string) error {
		return cfg.messages.Record(syncerr.LiteCoreDomain, syncerr.InvalidParameter, msg)
	}

	if p.Push == status.Disabled && p.Pull == status.Disabled {
		return nil, invalid("either push or pull must be enabled")
	}
	if p.DB == nil {
		return nil, invalid("no database given")
	}

	var opened []*store.Store
	defer func() {
		if rec := recover(); rec != nil {
			cfg.logger.Error("replicator construction panicked", "panic", rec)
			r, err = nil, cfg.messages.Record(syncerr.LiteCoreDomain, syncerr.UnexpectedError, fmt.Sprint(rec))
		}
		if err != nil {
			for _, db := range opened {
				db.Close()
			}
		}
	}()

	dbCopy, err := p.DB.OpenAgain()
	if err != nil {
		return nil, reopenError(cfg.messages, err)
	}
	opened = append(opened, dbCopy)

	r = &Replicator{
		id:       cfg.ids.Generate(),
		registry: cfg.registry,
		context:  p.Context,
		done:     make(chan struct{}),
	}
	if p.OnStatusChanged != nil {
		cb := p.OnStatusChanged
		r.callback.Store(&cb)
	}
	r.refs.Store(2)

	engineOpts := append([]engine.Option{
		engine.WithMessageLog(cfg.messages),
	}, cfg.engineOpts...)
	delegate := (*engineDelegate)(r)

	if p.OtherDB != nil {
		dbAddr := address.BuildLocal(p.DB.Path())
		otherAddr := address.BuildLocal(p.OtherDB.Path())
		if p.OtherDB == p.DB || dbAddr == otherAddr {
			return nil, invalid("can't replicate a database to itself")
		}
		otherCopy, err := p.OtherDB.OpenAgain()
		if err != nil {
			return nil, reopenError(cfg.messages, err)
		}
		opened = append(opened, otherCopy)

		r.logger = cfg.logger.With("replicator", r.id, "target", otherAddr.String())
		engineOpts = append(engineOpts, engine.WithLogger(r.logger))

		primaryT, err := cfg.loopback.CreateWebSocket(otherAddr)
		if err != nil {
			return nil, cfg.messages.Convert(err)
		}
		secondaryT, err := cfg.loopback.CreateWebSocket(dbAddr)
		if err != nil {
			return nil, cfg.messages.Convert(err)
		}
		r.primary = engine.New(dbCopy, primaryT, otherAddr, delegate, engine.RolePrimary,
			engine.Options{Push: p.Push, Pull: p.Pull}, engineOpts...)
		r.secondary = engine.New(otherCopy, secondaryT, dbAddr, delegate, engine.RoleSecondary,
			engine.Options{Push: status.Passive, Pull: status.Passive}, engineOpts...)
		r.otherLevel.Store(int32(r.secondary.Status().Level))
		if err := cfg.loopback.Connect(primaryT, secondaryT); err != nil {
			return nil, cfg.messages.Convert(err)
		}
	} else {
		if p.Remote == nil {
			return nil, invalid("no replication target given")
		}
		if !address.IsValidScheme(p.Remote.Scheme) {
			return nil, invalid("unsupported replication URL scheme")
		}
		remote := address.BuildRemote(*p.Remote, p.RemoteDBName)

		r.logger = cfg.logger.With("replicator", r.id, "target", remote.String())
		engineOpts = append(engineOpts, engine.WithLogger(r.logger))

		t, err := cfg.provider.CreateWebSocket(remote)
		if err != nil {
			return nil, cfg.messages.Convert(err)
		}
		r.primary = engine.New(dbCopy, t, remote, delegate, engine.RolePrimary,
			engine.Options{Push: p.Push, Pull: p.Pull}, engineOpts...)
		r.otherLevel.Store(int32(status.Stopped))
	}

	initial := r.primary.Status()
	r.status.Store(&initial)

	r.registry.add(r)
	r.logger.Info("replicator created", "push", p.Push, "pull", p.Pull, "local", r.secondary != nil)

	// From here the engines own the database copies.
	if r.secondary != nil {
		r.secondary.Start()
	}
	r.primary.Start()
	return r, nil
}

func reopenError(log *syncerr.MessageLog, err error) error {
	if e, ok := syncerr.As(err); ok {
		return e
	}
	return log.Record(syncerr.LiteCoreDomain, syncerr.CantOpenFile, err.Error())
}

// ID returns the session ID.
func (r *Replicator) ID() string {
	return r.id
}

// Status returns the most recent status of the primary engine.
func (r *Replicator) Status() status.Status {
	return *r.status.Load()
}

// Stop asks the replication to stop. It does not wait; watch the status
// callback or Done. Calling Stop again, or after the session ended, has no
// effect.
func (r *Replicator) Stop() {
	r.primary.Stop()
}

// Detach clears the status callback. Notifications already being
// delivered may still complete; no new ones start.
func (r *Replicator) Detach() {
	r.callback.Store(nil)
}

// Free stops the replication, detaches the callback and drops the
// caller's reference. The replicator must not be used afterwards. Calling
// Free more than once has no effect.
func (r *Replicator) Free() {
	if !r.freed.CompareAndSwap(false, true) {
		return
	}
	r.Stop()
	r.Detach()
	r.release()
}

// Released reports whether the session has quiesced: every engine has
// stopped and the replicator no longer holds a reference to itself.
func (r *Replicator) Released() bool {
	return r.released.Load()
}

// Done is closed when the replicator is destroyed, after Free and after
// every engine has stopped.
func (r *Replicator) Done() <-chan struct{} {
	return r.done
}

func (r *Replicator) release() {
	if r.refs.Add(-1) == 0 {
		r.logger.Debug("replicator destroyed")
		close(r.done)
	}
}

// engineDelegate receives engine status changes for a Replicator without
// adding StatusChanged to the Replicator's own method set.
type engineDelegate Replicator

func (d *engineDelegate) StatusChanged(role engine.Role, st status.Status) {
	(*Replicator)(d).statusChanged(role, st)
}

func (r *Replicator) statusChanged(role engine.Role, st status.Status) {
	switch role {
	case engine.RolePrimary:
		r.status.Store(&st)
		if cb := r.callback.Load(); cb != nil {
			(*cb)(r, st, r.context)
		}
	case engine.RoleSecondary:
		r.otherLevel.Store(int32(st.Level))
	}

	if r.Status().Level != status.Stopped || status.ActivityLevel(r.otherLevel.Load()) != status.Stopped {
		return
	}
	// Both engines deliver here; only one may drop the self reference.
	if r.released.CompareAndSwap(false, true) {
		r.logger.Info("replicator stopped", "status", r.Status().String())
		r.registry.remove(r.id)
		r.release()
	}
}
