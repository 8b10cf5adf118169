package ws

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/base"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Route is an additional plain HTTP handler served next to the bridge
type Route struct {
	Path    string
	Handler http.Handler
}

type wsServerTransport struct {
	handler  transport.ServerHandler
	config   common.ServerConfig
	routes   []Route
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	conns  *xsync.MapOf[*wsConn, struct{}]
	closed atomic.Bool
}

// wsConn implements transport.Conn on top of a websocket connection.
// Every reply line is sent as one newline terminated text message.
type wsConn struct {
	conn    *websocket.Conn
	addr    string
	mu      sync.Mutex // gorilla allows only one concurrent writer
	timeout time.Duration
}

// NewWebSocketServerTransport creates the WebSocket bridge. The bridge
// carries the same line protocol as the stream transports and serves the
// given routes (e.g. metrics) on the same HTTP server.
func NewWebSocketServerTransport(routes ...Route) transport.IRPCServerTransport {
	return &wsServerTransport{
		routes: routes,
		conns:  xsync.NewMapOf[*wsConn, struct{}](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *wsServerTransport) RegisterHandler(handler transport.ServerHandler) {
	t.handler = handler
}

func (t *wsServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}
	t.config = config

	path := config.WebSocketPath
	if path == "" {
		path = common.DefaultWebSocketPath
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, t.handleUpgrade)
	for _, route := range t.routes {
		mux.Handle(route.Path, route.Handler)
	}

	var handler http.Handler = mux
	if config.Debug {
		handler = loggerMiddleware(mux)
	}

	server := &http.Server{
		Addr:              config.WebSocketEndpoint,
		Handler:           handler,
		ReadHeaderTimeout: writeWait,
	}

	t.mu.Lock()
	t.server = server
	t.mu.Unlock()
	if t.closed.Load() {
		return nil
	}

	Logger.Infof("Starting WebSocket bridge on %s%s", config.WebSocketEndpoint, path)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *wsServerTransport) Close() error {
	t.closed.Store(true)

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()

	var err error
	if server != nil {
		err = server.Close()
	}

	// hijacked connections are not tracked by the http server
	t.conns.Range(func(c *wsConn, _ struct{}) bool {
		_ = c.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IHTTPServerTransport)
// --------------------------------------------------------------------------

func (t *wsServerTransport) Handle(path string, handler http.Handler) {
	t.routes = append(t.routes, Route{Path: path, Handler: handler})
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// handleUpgrade upgrades the request and serves the connection until it closes
func (t *wsServerTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Warningf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := &wsConn{
		conn:    conn,
		addr:    r.RemoteAddr,
		timeout: time.Duration(t.config.TimeoutSecond) * time.Second,
	}
	if c.timeout <= 0 {
		c.timeout = writeWait
	}
	t.conns.Store(c, struct{}{})
	defer t.conns.Delete(c)
	defer c.Close()

	Logger.Debugf("WebSocket connection opened by %s", c.addr)

	lines := t.handler(c)
	defer lines.Disconnect()

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(done)

	limit := t.config.LineLimit()
	conn.SetReadLimit(int64(limit) + 2)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	lb := base.NewLineBuffer(limit, lines.HandleLine)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if n := lb.Pending(); n > 0 {
				Logger.Debugf("Dropping %d bytes of an unterminated line from %s", n, c.addr)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Logger.Warningf("WebSocket read error from %s: %v", c.addr, err)
			} else {
				Logger.Infof("Connection closed by client %s", c.addr)
			}
			return
		}

		// messages are chunks of the line stream, a line may span several
		if err := lb.Push(message); err != nil {
			Logger.Warningf("Closing WebSocket connection to %s: %v", c.addr, err)
			return
		}
	}
}

// terminate appends the line delimiter if line lacks it
func terminate(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		return line
	}
	msg := make([]byte, len(line)+1)
	copy(msg, line)
	msg[len(line)] = '\n'
	return msg
}

// pingLoop keeps the connection alive until done is closed
func (c *wsConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Conn)
// --------------------------------------------------------------------------

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	return c.conn.WriteMessage(websocket.TextMessage, terminate(line))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so the upgrader can hijack it
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			Logger.Debugf("%s %s upgrade from %s", r.Method, r.URL.Path, r.RemoteAddr)
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s %d %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
