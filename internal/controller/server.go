package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/roach88/peersync/internal/engine"
	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/syncerr"
	"github.com/roach88/peersync/internal/transport"
)

// Server answers incoming replication connections with passive engines.
// Its HandleSession method is a transport.SessionHandler.
//
// The server serves the databases it was created with, by name. Each
// session gets its own database handle, so the server's handles are only
// used to re-open.
type Server struct {
	databases  map[string]*store.Store
	logger     *slog.Logger
	messages   *syncerr.MessageLog
	engineOpts []engine.Option

	sessions atomic.Int64
}

// NewServer creates a server for databases keyed by the name peers use in
// their URLs. Of the Options, WithLogger, WithMessageLog and
// WithEngineOptions apply.
func NewServer(databases map[string]*store.Store, opts ...Option) *Server {
	cfg := config{messages: syncerr.DefaultLog(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	dbs := make(map[string]*store.Store, len(databases))
	for name, db := range databases {
		dbs[name] = db
	}
	return &Server{
		databases:  dbs,
		logger:     cfg.logger,
		messages:   cfg.messages,
		engineOpts: cfg.engineOpts,
	}
}

// Databases returns the served database names in sorted order.
func (s *Server) Databases() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions returns the number of sessions in progress.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// HandleSession runs a passive session for dbName over t until the peer
// disconnects or ctx is cancelled.
func (s *Server) HandleSession(ctx context.Context, t transport.Transport, dbName string) {
	logger := s.logger.With("db", dbName, "peer", t.Address().String())

	db, ok := s.databases[dbName]
	if !ok {
		logger.Warn("rejecting session for unknown database")
		t.Close(transport.CloseInternalError, fmt.Sprintf("no database named %q", dbName))
		return
	}
	dbCopy, err := db.OpenAgain()
	if err != nil {
		logger.Error("re-opening database for session", "error", err)
		t.Close(transport.CloseInternalError, "database unavailable")
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	opts := append([]engine.Option{engine.WithMessageLog(s.messages), engine.WithLogger(logger)}, s.engineOpts...)
	e := engine.New(dbCopy, t, t.Address(), sessionDelegate{logger: logger}, engine.RolePrimary,
		engine.Options{Push: status.Passive, Pull: status.Passive}, opts...)
	e.Start()

	select {
	case <-ctx.Done():
		e.Stop()
		<-e.Done()
	case <-e.Done():
	}
}

// sessionDelegate logs the status of server-side sessions.
type sessionDelegate struct {
	logger *slog.Logger
}

func (d sessionDelegate) StatusChanged(_ engine.Role, st status.Status) {
	switch {
	case st.Level == status.Stopped && st.Error != nil:
		d.logger.Info("session ended", "error", st.Error.Error(), "completed", st.Progress.Completed)
	case st.Level == status.Stopped:
		d.logger.Info("session ended", "completed", st.Progress.Completed)
	default:
		d.logger.Debug("session status", "status", st.String())
	}
}
