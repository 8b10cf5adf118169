package server

import (
	"context"
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/ValentinKolb/netlevel/lib/db/engines/pebble"
	"github.com/ValentinKolb/netlevel/lib/registry"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// drainTimeout bounds how long Halt waits for sessions to release their bases
const drainTimeout = 5 * time.Second

// RPCServer serves the line protocol on one or more transports. It owns the
// credential store and the base registry of its data directory.
type RPCServer struct {
	config     common.ServerConfig
	transports []transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapters   map[common.CommandKind]IRPCServerAdapter

	users    *users.Store
	registry *registry.Registry
	sessions *xsync.MapOf[string, *session]
	debug    *xsync.MapOf[string, bool]
	started  time.Time

	haltOnce sync.Once
	halted   chan struct{}
}

// NewRPCServer creates a new RPC server
// It takes a config, a serializer and the transports to listen on. The
// users file is loaded and the seed user (if configured) is created before
// the server is returned.
//
// Usage:
//
//	s, err := server.NewRPCServer(
//		*config,
//		serializer.NewJSONSerializer(),
//		tcp.NewTCPServerTransport(),
//	)
//	if err != nil {
//		panic(err)
//	}
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	serializer serializer.IRPCSerializer,
	transports ...transport.IRPCServerTransport,
) (*RPCServer, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if config.DataDir == "" {
		return nil, errors.New("no data directory configured")
	}

	// Load the accounts
	accounts := users.NewStore(
		filepath.Join(config.DataDir, users.FileName),
		users.WithSelfPermissionChange(config.AllowSelfPermissionChange),
		users.WithHashCost(config.HashCost),
	)
	if err := accounts.Load(); err != nil {
		return nil, err
	}
	if err := accounts.Seed(config.SeedUser, config.SeedPass, config.SeedPassHash); err != nil {
		return nil, errors.Wrap(err, "failed to seed user")
	}
	if accounts.Count() == 0 {
		Logger.Warningf("No users configured, user administration is open to every client")
	}

	// Function to open the database of a base
	opts := pebble.DefaultOptions()
	opts.NoSync = config.NoSync
	dbFactory := func(dir string) (db.KVDB, error) { return pebble.NewPebbleDB(dir, opts) }

	reg, err := registry.New(config.DataDir, dbFactory)
	if err != nil {
		return nil, err
	}

	s := &RPCServer{
		config:     config,
		transports: transports,
		serializer: serializer,
		users:      accounts,
		registry:   reg,
		sessions:   xsync.NewMapOf[string, *session](),
		debug:      xsync.NewMapOf[string, bool](),
		started:    time.Now(),
		halted:     make(chan struct{}),
	}
	s.adapters = registerAdapters(
		newAdminAdapter(s),
		newAccountAdapter(s),
		newBaseAdapter(s),
	)

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())
	return s, nil
}

// Serve registers the connection handler with every transport and listens
// on all of them. It blocks until the server is halted or a transport fails.
func (s *RPCServer) Serve() error {
	if len(s.transports) == 0 {
		return errors.New("no transport configured")
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, t := range s.transports {
		t := t // per-iteration copy (go < 1.22 loop semantics)
		t.RegisterHandler(s.newSession)
		if h, ok := t.(transport.IHTTPServerTransport); ok {
			h.Handle(common.DefaultMetricsPath, s.metricsHandler())
		}
		g.Go(func() error {
			return t.Listen(s.config)
		})
	}

	// a failing transport takes the others down
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.Halt()
		case <-s.halted:
		}
		return nil
	})

	err := g.Wait()
	<-s.halted
	return err
}

// ServeConn serves a single connection without a transport (e.g. one end
// of a net.Pipe). It blocks until the connection is closed.
func (s *RPCServer) ServeConn(conn net.Conn) {
	base.ServeConn(conn, s.newSession, s.config)
}

// Halt stops the transports, closes all sessions and flushes every open
// base. It is safe to call more than once.
func (s *RPCServer) Halt() {
	s.haltOnce.Do(func() {
		Logger.Infof("Halting server")

		for _, t := range s.transports {
			if err := t.Close(); err != nil {
				Logger.Warningf("Failed to close transport: %v", err)
			}
		}
		s.sessions.Range(func(_ string, sess *session) bool {
			_ = sess.conn.Close()
			return true
		})
		s.drain(drainTimeout)

		if err := s.registry.CloseAll(); err != nil {
			Logger.Errorf("Failed to close bases: %v", err)
		}
		close(s.halted)
		Logger.Infof("Server halted")
	})
}

// Done is closed once the server is halted
func (s *RPCServer) Done() <-chan struct{} {
	return s.halted
}

// Registry returns the base registry of the server
func (s *RPCServer) Registry() *registry.Registry {
	return s.registry
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// drain waits until every session has disconnected or the timeout expired
func (s *RPCServer) drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for s.sessions.Size() > 0 {
		if time.Now().After(deadline) {
			Logger.Warningf("%d sessions still open after %s", s.sessions.Size(), timeout)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// metricsHandler serves the counters in the Prometheus text format
func (s *RPCServer) metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.registry.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
}
