package common

import (
	"encoding/json"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// UseNoneSentinel is the single element of the use array that releases the
// base of a session without selecting another one
const UseNoneSentinel = 42

// ReleaseOperand is the use operand carrying the sentinel
var ReleaseOperand = json.RawMessage("[42]")

// Request is the wire form of one request line. The command is selected by
// which command field is present, the remaining fields are operands.
// A field counts as present unless it is absent, null or false.
type Request struct {
	Call json.RawMessage `json:"call,omitempty"`

	// Command fields
	Halt  json.RawMessage `json:"halt,omitempty"`
	Stat  json.RawMessage `json:"stat,omitempty"`
	User  json.RawMessage `json:"user,omitempty"`
	Drop  json.RawMessage `json:"drop,omitempty"`
	Auth  json.RawMessage `json:"auth,omitempty"`
	Use   json.RawMessage `json:"use,omitempty"`
	Sub   json.RawMessage `json:"sub,omitempty"`
	Clear json.RawMessage `json:"clear,omitempty"`
	Get   json.RawMessage `json:"get,omitempty"`
	Put   json.RawMessage `json:"put,omitempty"`
	Del   json.RawMessage `json:"del,omitempty"`
	List  json.RawMessage `json:"list,omitempty"`
	Debug json.RawMessage `json:"debug,omitempty"`
	Ack   json.RawMessage `json:"ack,omitempty"`

	// Operands
	Cmd   json.RawMessage `json:"cmd,omitempty"`   // Used for: User
	Pass  json.RawMessage `json:"pass,omitempty"`  // Used for: Auth
	Value json.RawMessage `json:"value,omitempty"` // Used for: Put, Debug
	Opt   json.RawMessage `json:"opt,omitempty"`   // Used for: Stat, User, Use, Clear, List
}

// --------------------------------------------------------------------------
// Response Structure
// --------------------------------------------------------------------------

// Response is the wire form of one reply line. It echoes the call id and
// the command field of the request it answers.
type Response struct {
	Call json.RawMessage `json:"call,omitempty"`

	Halt  json.RawMessage `json:"halt,omitempty"`
	Stat  json.RawMessage `json:"stat,omitempty"` // the stat result, not an echo
	User  json.RawMessage `json:"user,omitempty"`
	Drop  json.RawMessage `json:"drop,omitempty"`
	Auth  json.RawMessage `json:"auth,omitempty"`
	Use   json.RawMessage `json:"use,omitempty"`
	Sub   json.RawMessage `json:"sub,omitempty"`
	Clear json.RawMessage `json:"clear,omitempty"`
	Get   json.RawMessage `json:"get,omitempty"`
	Put   json.RawMessage `json:"put,omitempty"`
	Del   json.RawMessage `json:"del,omitempty"`
	Debug json.RawMessage `json:"debug,omitempty"`

	Path     []string        `json:"path,omitempty"`  // Used for: Use, Sub
	List     json.RawMessage `json:"list,omitempty"`  // Used for: List rows, user list
	Rec      json.RawMessage `json:"rec,omitempty"`   // Used for: user describe
	Value    json.RawMessage `json:"value,omitempty"` // Used for: Get
	Continue bool            `json:"continue,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// NewResponse creates the reply skeleton for cmd with the call id and the
// command field echoed.
func NewResponse(cmd *Command) *Response {
	resp := &Response{Call: cmd.Call}
	if cmd.Req == nil {
		return resp
	}
	switch cmd.Kind {
	case CmdHalt:
		resp.Halt = cmd.Req.Halt
	case CmdUser:
		resp.User = cmd.Req.User
	case CmdDrop:
		resp.Drop = cmd.Req.Drop
	case CmdAuth:
		resp.Auth = cmd.Req.Auth
	case CmdUse:
		resp.Use = cmd.Req.Use
	case CmdSub:
		resp.Sub = cmd.Req.Sub
	case CmdClear:
		resp.Clear = cmd.Req.Clear
	case CmdGet:
		resp.Get = cmd.Req.Get
	case CmdPut:
		resp.Put = cmd.Req.Put
	case CmdDel:
		resp.Del = cmd.Req.Del
	case CmdDebug:
		resp.Debug = cmd.Req.Debug
	}
	return resp
}

// NewErrorResponse creates an error reply for cmd
func NewErrorResponse(cmd *Command, err error) *Response {
	resp := NewResponse(cmd)
	resp.Error = ErrorText(err)
	return resp
}

// Raw marshals v for use in a raw message field. Values that cannot be
// marshalled yield nil.
func Raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Present reports whether a raw field counts as set
func Present(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false":
		return false
	}
	return true
}

// --------------------------------------------------------------------------
// Decoded Commands
// --------------------------------------------------------------------------

// CommandKind identifies the command of a request
type CommandKind uint8

const (
	CmdNone    CommandKind = iota // no command field present
	CmdInvalid                    // ambiguous or badly shaped request
	CmdHalt
	CmdStat
	CmdUser
	CmdDrop
	CmdAuth
	CmdUse
	CmdSub
	CmdClear
	CmdGet
	CmdPut
	CmdDel
	CmdList
	CmdDebug
	CmdAck
)

// String returns the wire name of a CommandKind.
func (k CommandKind) String() string {
	switch k {
	case CmdNone:
		return "none"
	case CmdInvalid:
		return "invalid"
	case CmdHalt:
		return "halt"
	case CmdStat:
		return "stat"
	case CmdUser:
		return "user"
	case CmdDrop:
		return "drop"
	case CmdAuth:
		return "auth"
	case CmdUse:
		return "use"
	case CmdSub:
		return "sub"
	case CmdClear:
		return "clear"
	case CmdGet:
		return "get"
	case CmdPut:
		return "put"
	case CmdDel:
		return "del"
	case CmdList:
		return "list"
	case CmdDebug:
		return "debug"
	case CmdAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Command is a request decoded into exactly one command kind with typed
// operands. Which operand fields are set depends on Kind.
type Command struct {
	Kind CommandKind
	Call json.RawMessage
	Req  *Request
	Err  error // Used for: CmdNone, CmdInvalid

	Name    string          // Used for: User (action), Drop, Auth, Use, Debug
	Target  string          // Used for: User
	Pass    string          // Used for: Auth
	Key     string          // Used for: Get, Put, Del
	Value   json.RawMessage // Used for: Put
	Path    []string        // Used for: Sub
	UseNone bool            // Used for: Use
	On      bool            // Used for: Debug
	Count   int64           // Used for: Ack
	Opt     json.RawMessage // Used for: Stat, User, Use, Clear, List
}

// commandFields maps each command kind to its request field, in dispatch order
var commandFields = []struct {
	kind  CommandKind
	field func(r *Request) json.RawMessage
}{
	{CmdHalt, func(r *Request) json.RawMessage { return r.Halt }},
	{CmdStat, func(r *Request) json.RawMessage { return r.Stat }},
	{CmdUser, func(r *Request) json.RawMessage { return r.User }},
	{CmdDrop, func(r *Request) json.RawMessage { return r.Drop }},
	{CmdAuth, func(r *Request) json.RawMessage { return r.Auth }},
	{CmdUse, func(r *Request) json.RawMessage { return r.Use }},
	{CmdSub, func(r *Request) json.RawMessage { return r.Sub }},
	{CmdClear, func(r *Request) json.RawMessage { return r.Clear }},
	{CmdGet, func(r *Request) json.RawMessage { return r.Get }},
	{CmdPut, func(r *Request) json.RawMessage { return r.Put }},
	{CmdDel, func(r *Request) json.RawMessage { return r.Del }},
	{CmdList, func(r *Request) json.RawMessage { return r.List }},
	{CmdDebug, func(r *Request) json.RawMessage { return r.Debug }},
	{CmdAck, func(r *Request) json.RawMessage { return r.Ack }},
}

// Command decodes the request into a Command. It never fails: requests
// without a command, with more than one command or with badly shaped
// operands yield CmdNone or CmdInvalid with Err set, so the caller can
// still answer them.
func (r *Request) Command() *Command {
	cmd := &Command{Kind: CmdNone, Call: r.Call, Req: r, Err: ErrNoCommand}

	var raw json.RawMessage
	for _, f := range commandFields {
		v := f.field(r)
		if !Present(v) {
			continue
		}
		if cmd.Kind != CmdNone {
			cmd.Kind, cmd.Err = CmdInvalid, ErrAmbiguousCommand
			return cmd
		}
		cmd.Kind, raw = f.kind, v
	}
	if cmd.Kind == CmdNone {
		return cmd
	}
	cmd.Err = nil

	if err := cmd.decodeOperands(raw); err != nil {
		cmd.Err = errors.Mark(errors.Newf("invalid request: %s %v", cmd.Kind, err), ErrInvalidRequest)
		cmd.Kind = CmdInvalid
	}
	return cmd
}

// decodeOperands fills the typed operand fields for cmd.Kind
func (cmd *Command) decodeOperands(raw json.RawMessage) (err error) {
	r := cmd.Req
	cmd.Opt = r.Opt

	switch cmd.Kind {
	case CmdHalt:
		return nil

	case CmdStat, CmdClear, CmdList:
		// the options may be given inline instead of true
		if isObject(raw) {
			cmd.Opt = raw
		}
		return nil

	case CmdUser:
		if cmd.Name, err = decodeString(raw); err != nil {
			return err
		}
		if Present(r.Cmd) {
			cmd.Target, err = decodeString(r.Cmd)
		}
		return err

	case CmdDrop:
		cmd.Name, err = decodeString(raw)
		return err

	case CmdAuth:
		if cmd.Name, err = decodeString(raw); err != nil {
			return err
		}
		if Present(r.Pass) {
			cmd.Pass, err = decodeString(r.Pass)
		}
		return err

	case CmdUse:
		if len(raw) > 0 && raw[0] == '[' {
			var sentinel []any
			if err := json.Unmarshal(raw, &sentinel); err != nil || len(sentinel) != 1 || sentinel[0] != any(float64(UseNoneSentinel)) {
				return errors.Newf("expects a base name or [%d] to release the base", UseNoneSentinel)
			}
			cmd.UseNone = true
			return nil
		}
		cmd.Name, err = decodeString(raw)
		return err

	case CmdSub:
		if len(raw) > 0 && raw[0] == '[' {
			if err := json.Unmarshal(raw, &cmd.Path); err != nil {
				return errors.New("expects a path segment or a list of them")
			}
			return nil
		}
		seg, err := decodeString(raw)
		if err != nil {
			return err
		}
		cmd.Path = []string{seg}
		return nil

	case CmdGet, CmdDel:
		cmd.Key, err = decodeString(raw)
		return err

	case CmdPut:
		if cmd.Key, err = decodeString(raw); err != nil {
			return err
		}
		cmd.Value = r.Value
		if len(cmd.Value) == 0 {
			cmd.Value = json.RawMessage("null")
		}
		return nil

	case CmdDebug:
		if cmd.Name, err = decodeString(raw); err != nil {
			return err
		}
		switch string(r.Value) {
		case `"on"`, "true":
			cmd.On = true
		case `"off"`, "false":
			cmd.On = false
		default:
			return errors.New(`expects value "on" or "off"`)
		}
		return nil

	case CmdAck:
		if err := json.Unmarshal(raw, &cmd.Count); err != nil || cmd.Count <= 0 {
			return errors.New("expects a positive row count")
		}
		return nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("expects a string")
	}
	return s, nil
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}
