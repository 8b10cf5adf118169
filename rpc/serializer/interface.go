package serializer

import "github.com/ValentinKolb/netlevel/rpc/common"

// IRPCSerializer is the interface for the line codec of the wire protocol.
// Encoded lines carry their terminating newline.
type IRPCSerializer interface {
	// EncodeRequest serializes a request into one line
	EncodeRequest(req *common.Request) ([]byte, error)
	// DecodeRequest parses one line into a Command. A line that is not a
	// JSON object yields common.ErrMalformedRequest. Requests that parse but
	// carry no, several or badly shaped commands are returned as CmdNone or
	// CmdInvalid so they can still be answered.
	DecodeRequest(line []byte) (*common.Command, error)
	// EncodeResponse serializes a response into one line
	EncodeResponse(resp *common.Response) ([]byte, error)
	// DecodeResponse parses one line into resp
	DecodeResponse(line []byte, resp *common.Response) error
}
