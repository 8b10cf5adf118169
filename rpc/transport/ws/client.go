package ws

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/base"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"strings"
	"sync"
	"time"
)

type wsClientTransport struct{}

// wsClientConn implements transport.ClientConn on top of a websocket connection
type wsClientConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
	maxLine int
}

// NewWebSocketClientTransport creates a client transport for the WebSocket bridge
func NewWebSocketClientTransport() transport.IRPCClientTransport {
	return &wsClientTransport{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *wsClientTransport) GetName() string {
	return "websocket"
}

func (t *wsClientTransport) Dial(config common.ClientConfig) (transport.ClientConn, error) {
	if config.Endpoint == "" {
		return nil, errors.New("no endpoint provided")
	}

	url := EndpointURL(config.Endpoint)
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = writeWait
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", url)
	}

	Logger.Debugf("Connected to %s using websocket transport", url)
	return &wsClientConn{
		conn:    conn,
		timeout: timeout,
		maxLine: config.LineLimit(),
	}, nil
}

// EndpointURL turns host:port into a ws:// URL on the default path.
// Full ws:// and wss:// URLs are returned unchanged.
func EndpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint + common.DefaultWebSocketPath
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ClientConn)
// --------------------------------------------------------------------------

func (c *wsClientConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	return c.conn.WriteMessage(websocket.TextMessage, terminate(line))
}

func (c *wsClientConn) ReadLines(fn func(line []byte) error) error {
	lb := base.NewLineBuffer(c.maxLine, fn)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := lb.Push(message); err != nil {
			return err
		}
	}
}

func (c *wsClientConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
