package tcp

import (
	"context"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/base"
	"github.com/cockroachdb/errors"
	"net"
	"time"
)

// keepAlivePeriod detects dead peers, whose sessions hold base references
const keepAlivePeriod = 30 * time.Second

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: keepAlivePeriod}
	listener, err := lc.Listen(context.Background(), "tcp", config.ListenAddress())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create TCP socket")
	}
	return listener, nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}
