package server

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// An adapter executes one family of commands against the state of a session.
type IRPCServerAdapter interface {
	// Kinds returns the command kinds handled by the adapter
	Kinds() []common.CommandKind

	// Handle executes an authorized command and returns the reply.
	// A nil reply means the adapter answers asynchronously (list) or the
	// command has no reply (ack). A returned error is sent as an error
	// reply for the command.
	Handle(sess *session, cmd *common.Command) (resp *common.Response, err error)
}

// registerAdapters builds the dispatch table. Every command kind must be
// handled by exactly one adapter.
func registerAdapters(adapters ...IRPCServerAdapter) map[common.CommandKind]IRPCServerAdapter {
	table := make(map[common.CommandKind]IRPCServerAdapter)
	for _, a := range adapters {
		for _, kind := range a.Kinds() {
			if _, ok := table[kind]; ok {
				panic("command " + kind.String() + " registered twice")
			}
			table[kind] = a
		}
	}
	return table
}
