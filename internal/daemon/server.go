package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
	"github.com/vaultsearch/vaultsearch/internal/search"
)

// State is the daemon lifecycle state.
type State string

const (
	StateInit         State = "init"
	StateLoading      State = "loading"
	StateReady        State = "ready"
	StateRefreshing   State = "refreshing"
	StateShuttingDown State = "shutting_down"
)

// Server owns the long-lived index snapshot and serves queries over a
// unix socket, one request per connection.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	prov    provider.Provider
	store   *index.Store
	builder *index.Builder
	engine  *search.Engine

	snap  atomic.Pointer[index.Snapshot]
	state atomic.Value

	pidfile *PIDFile
	lock    *flock.Flock

	refreshGroup singleflight.Group
	lastRefresh  atomic.Pointer[time.Time]
	started      time.Time

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer wires a server over the given configuration and provider.
func NewServer(cfg *config.Config, prov provider.Provider, logger *slog.Logger) (*Server, error) {
	store, err := index.NewStore(cfg.IndexDir())
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		prov:    prov,
		store:   store,
		builder: index.NewBuilder(store, cfg, prov, logger),
		engine: search.NewEngine(prov, logger, search.WithWeights(search.Weights{
			Lexical:  cfg.Search.LexicalWeight,
			Semantic: cfg.Search.SemanticWeight,
		}), search.WithRRFConstant(cfg.Search.RRFConstant)),
		pidfile: NewPIDFile(cfg.PIDPath()),
		lock:    flock.New(cfg.LockPath()),
	}
	s.state.Store(StateInit)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return s.state.Load().(State)
}

// Run starts the daemon and blocks until ctx is cancelled. On return
// the socket, PID file, and lock are released.
func (s *Server) Run(ctx context.Context) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return errors.Wrap(errors.KindChannel, "acquire daemon lock", err).WithPath(s.lock.Path())
	}
	if !locked {
		return errors.New(errors.KindChannel, "another daemon is already running").
			WithPath(s.lock.Path()).
			WithSuggestion("run 'vaultsearch stop' first")
	}
	defer func() { _ = s.lock.Unlock() }()

	if s.pidfile.ReclaimStale() {
		s.logger.Warn("reclaimed stale PID file", "path", s.pidfile.Path())
	}
	if s.pidfile.IsRunning() {
		return errors.New(errors.KindChannel, "another daemon is already running").WithPath(s.pidfile.Path())
	}
	if err := s.pidfile.Write(); err != nil {
		return err
	}
	defer func() { _ = s.pidfile.Remove() }()

	s.state.Store(StateLoading)
	if err := s.load(); err != nil {
		s.state.Store(StateShuttingDown)
		return err
	}
	defer s.closeSnapshot()

	socketPath := s.cfg.SocketPath()
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrap(errors.KindChannel, "listen on daemon socket", err).WithPath(socketPath)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		s.logger.Warn("restrict socket permissions failed", "error", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	s.started = time.Now()
	s.state.Store(StateReady)
	s.logger.Info("daemon ready", "socket", socketPath, "vault", s.cfg.VaultPath)

	go s.refreshLoop(ctx)
	go func() {
		<-ctx.Done()
		s.beginShutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			down := s.shutdown
			s.mu.Unlock()
			if down {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.drain()
	s.logger.Info("daemon stopped")
	return nil
}

// load publishes the most recent snapshot. A missing or corrupt index
// is fatal to startup: the daemon never serves an empty index instead.
func (s *Server) load() error {
	snap, err := s.store.Load()
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}

// beginShutdown stops accepting connections.
func (s *Server) beginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	s.shutdown = true
	s.state.Store(StateShuttingDown)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// drain waits for in-flight requests, up to the configured grace period.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.Daemon.ShutdownGrace):
		s.logger.Warn("shutdown grace period expired with requests in flight")
	}
}

func (s *Server) closeSnapshot() {
	if snap := s.snap.Swap(nil); snap != nil {
		snap.Close()
	}
}

// refreshLoop refreshes the index on a timer until ctx is cancelled.
func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Daemon.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Warn("scheduled refresh failed", "error", err)
			}
		}
	}
}

// Refresh runs one incremental update and swaps in the new snapshot.
// Concurrent triggers join the in-flight refresh instead of queueing.
func (s *Server) Refresh(ctx context.Context) (*index.BuildStats, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*index.BuildStats), nil
}

func (s *Server) refresh(ctx context.Context) (*index.BuildStats, error) {
	if st := s.State(); st != StateReady {
		return nil, errors.Newf(errors.KindChannel, "daemon is %s, not ready", st)
	}
	s.state.Store(StateRefreshing)
	defer func() {
		if s.State() == StateRefreshing {
			s.state.Store(StateReady)
		}
	}()

	stats, err := s.builder.Update(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s.lastRefresh.Store(&now)

	current, err := s.store.CurrentDir()
	if err != nil {
		return nil, err
	}
	old := s.snap.Load()
	if old != nil && old.Dir == current {
		return stats, nil
	}

	next, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	s.snap.Store(next)
	if old != nil {
		old.Retire()
	}
	s.logger.Info("snapshot swapped", "dir", next.Dir)
	return stats, nil
}

// acquireSnapshot pins the live snapshot for one request.
func (s *Server) acquireSnapshot() *index.Snapshot {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	snap.Acquire()
	return snap
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Daemon.RequestTimeout)); err != nil {
		s.logger.Warn("set connection deadline failed", "error", err)
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(errorResponse("", ErrCodeParseError, "cannot parse request"))
		return
	}
	_ = encoder.Encode(s.handleRequest(ctx, req))
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if st := s.State(); st == StateShuttingDown {
		return errorResponse(req.ID, ErrCodeShuttingDown, "daemon is shutting down")
	}

	switch req.Method {
	case MethodPing:
		return successResponse(req.ID, map[string]bool{"pong": true})
	case MethodStatus:
		return successResponse(req.ID, s.statusResult())
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodUpdate:
		return s.handleUpdate(ctx, req)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, "cannot decode params")
		}
	}
	if params.Query == "" {
		return errorResponse(req.ID, ErrCodeInvalidParams, "query is required")
	}

	snap := s.acquireSnapshot()
	if snap == nil {
		return errorResponse(req.ID, ErrCodeNotReady, "index is not loaded")
	}
	defer snap.Release()

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Daemon.RequestTimeout)
	defer cancel()

	hits, err := s.engine.Search(reqCtx, snap, search.Query{
		Text:     params.Query,
		TopN:     params.TopN,
		Fast:     params.Fast,
		MinScore: params.MinScore,
	})
	if err != nil {
		s.logger.Error("search failed", "query", params.Query, "error", err)
		return errorResponse(req.ID, ErrCodeSearchFailed, err.Error())
	}
	return successResponse(req.ID, SearchResult{Hits: hits})
}

func (s *Server) handleUpdate(ctx context.Context, req Request) Response {
	stats, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Error("requested refresh failed", "error", err)
		return errorResponse(req.ID, ErrCodeUpdateFailed, err.Error())
	}
	return successResponse(req.ID, UpdateResult{
		Added:      stats.Added,
		Changed:    stats.Changed,
		Removed:    stats.Removed,
		Unchanged:  stats.Unchanged,
		Skipped:    stats.Skipped,
		DurationMs: stats.Duration.Milliseconds(),
		Full:       stats.Full,
	})
}

func (s *Server) statusResult() StatusResult {
	st := StatusResult{
		State:        string(s.State()),
		PID:          os.Getpid(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		VaultPath:    s.cfg.VaultPath,
		Provider:     s.cfg.Provider.Name,
		Model:        s.prov.ModelName(),
		RefreshEvery: s.cfg.Daemon.RefreshInterval.String(),
	}
	if snap := s.snap.Load(); snap != nil {
		st.Documents = snap.Manifest.DocumentCount
		st.Chunks = snap.Manifest.ChunkCount
		st.IndexBuiltAt = snap.Manifest.BuiltAt.Format(time.RFC3339)
	}
	if last := s.lastRefresh.Load(); last != nil {
		st.LastRefresh = last.Format(time.RFC3339)
	}
	return st
}
