package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/syncerr"
	"github.com/roach88/peersync/internal/transport"
)

// Role tags which of a controller's engines a status change came from.
type Role int

const (
	// RolePrimary is the engine that talks to the configured target.
	RolePrimary Role = iota
	// RoleSecondary is the passive engine serving the other local database.
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Delegate receives status changes. StatusChanged is called from the
// engine's notifier goroutine, in order, never concurrently for one engine.
type Delegate interface {
	StatusChanged(role Role, st status.Status)
}

// Options selects the mode of each direction.
type Options struct {
	Push status.Mode
	Pull status.Mode
}

// active reports whether the engine initiates any transfer.
func (o Options) active() bool {
	return o.Push.IsActive() || o.Pull.IsActive()
}

const (
	// DefaultPollInterval is how long a continuous engine idles between
	// rounds.
	DefaultPollInterval = 2 * time.Second

	// DefaultBatchSize is the maximum number of revisions per frame.
	DefaultBatchSize = 100
)

// Engine runs one replication session over one transport.
//
// The session runs on its own goroutine between Start and the final
// Stopped status. A second goroutine delivers status changes to the
// delegate so the session never blocks on the delegate.
//
// Thread-safety model:
//   - Start(), Stop(), Status(), Done(): safe from any goroutine
//   - Delegate callbacks: one at a time, in order
//
// INVARIANTS:
//   - Once Stopped is reported the level never changes again
//   - The engine owns db and closes it before reporting Stopped
type Engine struct {
	db        *store.Store
	transport transport.Transport
	addr      address.Address
	delegate  Delegate
	role      Role
	opts      Options

	logger       *slog.Logger
	messages     *syncerr.MessageLog
	pollInterval time.Duration
	batchSize    int
	threshold    int

	clock *Clock
	queue *statusQueue

	mu     sync.Mutex
	status status.Status

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	notified chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMessageLog sets the log error messages are recorded in.
// Default: syncerr.DefaultLog().
func WithMessageLog(l *syncerr.MessageLog) Option {
	return func(e *Engine) {
		if l != nil {
			e.messages = l
		}
	}
}

// WithPollInterval sets how long a continuous engine idles between rounds.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithBatchSize sets the maximum number of revisions per frame.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCompressionThreshold sets the frame size above which frames are
// compressed. Negative disables compression.
func WithCompressionThreshold(n int) Option {
	return func(e *Engine) {
		e.threshold = n
	}
}

// New creates an engine for a session against addr over t. The engine
// takes ownership of db and t.
//
// New panics if db, t or delegate is nil.
func New(
	db *store.Store,
	t transport.Transport,
	addr address.Address,
	delegate Delegate,
	role Role,
	opts Options,
	options ...Option,
) *Engine {
	if db == nil {
		panic("engine: nil store")
	}
	if t == nil {
		panic("engine: nil transport")
	}
	if delegate == nil {
		panic("engine: nil delegate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		db:           db,
		transport:    t,
		addr:         addr,
		delegate:     delegate,
		role:         role,
		opts:         opts,
		logger:       slog.Default(),
		messages:     syncerr.DefaultLog(),
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		threshold:    DefaultCompressionThreshold,
		clock:        NewClock(),
		queue:        newStatusQueue(),
		status:       status.Status{Level: status.Connecting},
		ctx:          ctx,
		cancel:       cancel,
		notified:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = e.logger.With("role", role.String(), "peer", addr.String())
	return e
}

// Start begins the session. Calling Start more than once has no effect.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.queue.Enqueue(e.Status())
	go e.notify()
	go e.run()
}

// Stop asks the session to end. It does not wait; the final Stopped status
// is delivered to the delegate. Stop is idempotent, and an engine stopped
// before Start still reports Stopped.
func (e *Engine) Stop() {
	e.cancel()
	e.Start()
}

// Status returns the current status snapshot.
func (e *Engine) Status() status.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Done is closed after the Stopped status has been delivered.
func (e *Engine) Done() <-chan struct{} {
	return e.notified
}

// setStatus records a new status and queues it for the delegate. Changes
// the state machine does not allow are dropped.
func (e *Engine) setStatus(st status.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !status.CanTransition(e.status.Level, st.Level) {
		e.logger.Debug("dropping status change", "from", e.status.Level, "to", st.Level)
		return
	}
	if st == e.status {
		return
	}
	e.status = st
	e.queue.Enqueue(st)
}

func (e *Engine) setLevel(level status.ActivityLevel) {
	st := e.Status()
	st.Level = level
	e.setStatus(st)
}

func (e *Engine) addProgress(completed, total int) {
	st := e.Status()
	st.Progress.Completed += uint64(completed)
	st.Progress.Total += uint64(total)
	e.setStatus(st)
}

// notify delivers queued statuses to the delegate until the queue closes.
func (e *Engine) notify() {
	defer close(e.notified)
	for {
		if st, ok := e.queue.TryDequeue(); ok {
			e.delegate.StatusChanged(e.role, st)
			continue
		}
		if _, open := <-e.queue.Wait(); !open {
			for {
				st, ok := e.queue.TryDequeue()
				if !ok {
					return
				}
				e.delegate.StatusChanged(e.role, st)
			}
		}
	}
}

func (e *Engine) run() {
	err := e.session(e.ctx)
	stopped := e.ctx.Err() != nil
	e.cancel()

	code, reason := transport.CloseNormal, ""
	switch {
	case stopped:
		code, reason = transport.CloseGoingAway, "stopped"
	case IsMalformedFrame(err) || IsUnexpectedFrame(err):
		code, reason = transport.CloseProtocolError, err.Error()
	case err != nil && !transport.IsNormalClose(err):
		code, reason = transport.CloseInternalError, err.Error()
	}
	if cerr := e.transport.Close(code, reason); cerr != nil {
		e.logger.Debug("closing transport", "error", cerr)
	}
	if cerr := e.db.Close(); cerr != nil {
		e.logger.Warn("closing database", "error", cerr)
	}

	final := e.Status()
	final.Level = status.Stopped
	if err != nil && !stopped && !transport.IsNormalClose(err) {
		se := convertError(e.messages, err)
		final.Error = &se
		e.logger.Info("replication stopped with error", "error", err)
	} else {
		e.logger.Debug("replication stopped",
			"completed", final.Progress.Completed, "total", final.Progress.Total)
	}
	e.setStatus(final)
	e.queue.Close()
}

func (e *Engine) session(ctx context.Context) error {
	if err := e.transport.Open(ctx); err != nil {
		return err
	}
	e.logger.Debug("connected", "push", e.opts.Push, "pull", e.opts.Pull)

	if e.opts.active() {
		return e.runActive(ctx)
	}
	e.setLevel(status.Idle)
	return e.runPassive(ctx)
}

// runActive drives rounds until every active direction is done. One-shot
// directions run in the first round only.
func (e *Engine) runActive(ctx context.Context) error {
	peer := e.addr.String()
	for first := true; ; first = false {
		e.setLevel(status.Busy)
		if e.opts.Push == status.Continuous || (first && e.opts.Push == status.OneShot) {
			if err := e.pushRound(ctx, peer); err != nil {
				return err
			}
		}
		if e.opts.Pull == status.Continuous || (first && e.opts.Pull == status.OneShot) {
			if err := e.pullRound(ctx, peer); err != nil {
				return err
			}
		}
		e.setLevel(status.Idle)

		if e.opts.Push != status.Continuous && e.opts.Pull != status.Continuous {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

// pushRound sends local changes since the push checkpoint, one batch per
// lockstep exchange.
func (e *Engine) pushRound(ctx context.Context, peer string) error {
	for {
		since, err := e.db.Checkpoint(ctx, peer, store.DirectionPush)
		if err != nil {
			return e.localFailure(ctx, err)
		}
		docs, err := e.db.ChangesSince(ctx, since, e.batchSize)
		if err != nil {
			return e.localFailure(ctx, err)
		}
		if len(docs) == 0 {
			return nil
		}
		e.addProgress(0, len(docs))

		req := Frame{Kind: FrameRevs, Number: e.clock.Next(), Last: docs[len(docs)-1].Seq, Revs: toRevisions(docs)}
		if err := e.send(ctx, req); err != nil {
			return err
		}
		reply, err := e.expect(ctx, FrameAck, req.Number)
		if err != nil {
			return err
		}
		if err := e.db.SetCheckpoint(ctx, peer, store.DirectionPush, req.Last); err != nil {
			return e.localFailure(ctx, err)
		}
		e.addProgress(len(docs), 0)
		e.logger.Debug("pushed batch", "count", len(docs), "applied", reply.Applied, "last", req.Last)

		if len(docs) < e.batchSize {
			return nil
		}
	}
}

// pullRound asks the peer for its changes since the pull checkpoint.
func (e *Engine) pullRound(ctx context.Context, peer string) error {
	for {
		since, err := e.db.Checkpoint(ctx, peer, store.DirectionPull)
		if err != nil {
			return e.localFailure(ctx, err)
		}
		req := Frame{Kind: FrameSubscribe, Number: e.clock.Next(), Since: since, Limit: e.batchSize}
		if err := e.send(ctx, req); err != nil {
			return err
		}
		reply, err := e.expect(ctx, FrameRevs, req.Number)
		if err != nil {
			return err
		}
		if len(reply.Revs) == 0 {
			return nil
		}
		e.addProgress(0, len(reply.Revs))

		applied, err := e.db.Apply(ctx, fromRevisions(reply.Revs))
		if err != nil {
			return e.localFailure(ctx, err)
		}
		if err := e.db.SetCheckpoint(ctx, peer, store.DirectionPull, reply.Last); err != nil {
			return e.localFailure(ctx, err)
		}
		e.addProgress(len(reply.Revs), 0)
		e.logger.Debug("pulled batch", "count", len(reply.Revs), "applied", applied, "last", reply.Last)

		if len(reply.Revs) < e.batchSize {
			return nil
		}
	}
}

// runPassive answers the peer's requests until it closes the connection.
func (e *Engine) runPassive(ctx context.Context) error {
	for {
		f, err := e.receive(ctx)
		if err != nil {
			return err
		}
		e.setLevel(status.Busy)

		switch f.Kind {
		case FrameRevs:
			err = e.handleRevs(ctx, f)
		case FrameSubscribe:
			err = e.handleSubscribe(ctx, f)
		case FrameError:
			err = NewRemoteError(f.Error)
		default:
			err = NewUnexpectedFrameError(f.Kind, FrameSubscribe)
		}
		if err != nil {
			return err
		}
		e.setLevel(status.Idle)
	}
}

func (e *Engine) handleRevs(ctx context.Context, f Frame) error {
	if e.opts.Pull == status.Disabled {
		return e.refuse(ctx, f, "pull is disabled on this peer")
	}
	e.addProgress(0, len(f.Revs))
	applied, err := e.db.Apply(ctx, fromRevisions(f.Revs))
	if err != nil {
		return e.localFailure(ctx, err)
	}
	e.addProgress(len(f.Revs), 0)
	return e.send(ctx, Frame{Kind: FrameAck, Number: e.clock.Next(), ReplyTo: f.Number, Applied: applied})
}

func (e *Engine) handleSubscribe(ctx context.Context, f Frame) error {
	if e.opts.Push == status.Disabled {
		return e.refuse(ctx, f, "push is disabled on this peer")
	}
	limit := f.Limit
	if limit <= 0 || limit > e.batchSize {
		limit = e.batchSize
	}
	docs, err := e.db.ChangesSince(ctx, f.Since, limit)
	if err != nil {
		return e.localFailure(ctx, err)
	}
	reply := Frame{Kind: FrameRevs, Number: e.clock.Next(), ReplyTo: f.Number, Last: f.Since, Revs: toRevisions(docs)}
	if len(docs) > 0 {
		reply.Last = docs[len(docs)-1].Seq
	}
	if err := e.send(ctx, reply); err != nil {
		return err
	}
	e.addProgress(len(docs), len(docs))
	return nil
}

// refuse reports an unsupported request to the peer and ends the session.
func (e *Engine) refuse(ctx context.Context, f Frame, reason string) error {
	se := e.messages.Record(syncerr.LiteCoreDomain, syncerr.Unsupported, reason)
	e.sendError(ctx, f.Number, se)
	return se
}

// localFailure reports a local database failure to the peer, best effort,
// and returns it.
func (e *Engine) localFailure(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		e.sendError(ctx, 0, e.messages.Record(syncerr.LiteCoreDomain, syncerr.RemoteError, err.Error()))
	}
	return err
}

func (e *Engine) sendError(ctx context.Context, replyTo int64, se syncerr.Error) {
	f := Frame{Kind: FrameError, Number: e.clock.Next(), ReplyTo: replyTo, Error: wireError(se)}
	if err := e.send(ctx, f); err != nil {
		e.logger.Debug("sending error frame", "error", err)
	}
}

func (e *Engine) send(ctx context.Context, f Frame) error {
	data, err := EncodeFrame(f, e.threshold)
	if err != nil {
		return err
	}
	return e.transport.Send(ctx, data)
}

func (e *Engine) receive(ctx context.Context) (Frame, error) {
	data, err := e.transport.Receive(ctx)
	if err != nil {
		return Frame{}, err
	}
	return DecodeFrame(data)
}

// expect receives the reply to request number replyTo, which must be of
// kind want.
func (e *Engine) expect(ctx context.Context, want FrameKind, replyTo int64) (Frame, error) {
	f, err := e.receive(ctx)
	if err != nil {
		if transport.IsNormalClose(err) {
			// The peer hung up mid-exchange.
			return Frame{}, fmt.Errorf("waiting for %s: %w", want, &transport.CloseError{Code: transport.CloseGoingAway, Reason: "peer closed connection"})
		}
		return Frame{}, err
	}
	if f.Kind == FrameError {
		return Frame{}, NewRemoteError(f.Error)
	}
	if f.Kind != want {
		return Frame{}, NewUnexpectedFrameError(f.Kind, want)
	}
	if f.ReplyTo != replyTo {
		return Frame{}, &ProtocolError{
			Code:    ErrCodeUnexpectedFrame,
			Message: fmt.Sprintf("%s frame answers request %d, expected %d", f.Kind, f.ReplyTo, replyTo),
		}
	}
	return f, nil
}

func toRevisions(docs []store.Document) []Revision {
	revs := make([]Revision, len(docs))
	for i, d := range docs {
		revs[i] = Revision{ID: d.ID, Body: d.Body, Deleted: d.Deleted, Seq: d.Seq}
	}
	return revs
}

func fromRevisions(revs []Revision) []store.Document {
	docs := make([]store.Document, len(revs))
	for i, r := range revs {
		body := r.Body
		if body == nil {
			body = []byte{}
		}
		docs[i] = store.Document{ID: r.ID, Body: body, Deleted: r.Deleted, Seq: r.Seq}
	}
	return docs
}
