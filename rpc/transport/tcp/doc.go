// Package tcp implements the TCP socket transport of the netlevel server.
// It provides concrete implementations of the base package's connector
// interfaces, all framing and connection handling is inherited from base.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// The server listens on ServerConfig.ListenAddress(), which is host:port
// unless an explicit endpoint is configured.
package tcp
