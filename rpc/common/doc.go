// Package common provides the types shared by the client and the server.
//
// The package focuses on:
//   - The request, command and response types of the line protocol
//   - Configuration structures for client and server
//   - The mapping between errors and their wire texts
//   - Custom logging integrated with the Dragonboat logger package
//
// Key Components:
//
//   - Request: One decoded request line. Command() classifies it into exactly
//     one CommandKind and extracts its operands. Lines carrying no command,
//     or more than one, become CmdNone and CmdInvalid.
//
//   - Response: One reply line. NewResponse echoes the call id (and for most
//     commands the command field), NewErrorResponse carries the error text.
//
//   - ServerConfig: Listener, storage, seed account and logging settings of
//     a server.
//
//   - ClientConfig: Endpoint, timeout and retry behavior of a client.
//
//   - ErrorText / ErrorFromText: Known errors travel as their exact message
//     and are matched back to their sentinels on the client.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
