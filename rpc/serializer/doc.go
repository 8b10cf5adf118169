// Package serializer provides the line codec of the netlevel wire protocol.
// Every request and every reply is a single JSON object on its own line.
//
// Key Components:
//
//   - IRPCSerializer: Interface of the codec, used by the server to decode
//     requests and encode replies and by the client the other way round.
//
//   - jsonSerializerImpl: The newline delimited JSON implementation. HTML
//     characters are not escaped so lines are byte compatible with other
//     JSON line clients.
//
// Decoding is split in two stages. A line that is not a JSON object is a
// protocol violation (common.ErrMalformedRequest) and the connection is
// closed. A line that is a JSON object always decodes into a
// common.Command, even if it names no command or several. Those are
// answered with an error reply instead.
package serializer
