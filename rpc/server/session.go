package server

import (
	"context"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/lib/registry"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Session State
// --------------------------------------------------------------------------

// session is the state of one client connection. The fields below the
// connection are owned by the goroutine reading the connection, only list
// goroutines run concurrently and they work on a snapshot of the store.
type session struct {
	srv     *RPCServer
	conn    transport.Conn
	id      string
	addr    string
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	user   string // empty while not authenticated
	grants users.Grants
	entry  *registry.Entry
	path   []store.IStore // navigation stack, path[0] is the root store

	lists *xsync.MapOf[string, *listCall]
	wg    sync.WaitGroup
}

// listCall is a list running in the background, keyed by its call id
type listCall struct {
	cancel context.CancelFunc
	flow   *rangeiter.FlowControl
}

// newSession implements transport.ServerHandler
func (s *RPCServer) newSession(conn transport.Conn) transport.LineHandler {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		srv:     s,
		conn:    conn,
		id:      ulid.Make().String(),
		addr:    conn.RemoteAddr(),
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		lists:   xsync.NewMapOf[string, *listCall](),
	}
	s.sessions.Store(sess.id, sess)
	Logger.Infof("Session %s opened by %s", sess.id, sess.addr)
	return sess
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.LineHandler)
// --------------------------------------------------------------------------

func (sess *session) HandleLine(line []byte) error {
	cmd, err := sess.srv.serializer.DecodeRequest(line)
	if err != nil {
		return err
	}
	return sess.dispatch(cmd)
}

func (sess *session) Disconnect() {
	sess.cancel()
	sess.wg.Wait()
	sess.releaseBase()
	sess.srv.sessions.Delete(sess.id)
	Logger.Infof("Session %s of %s closed", sess.id, sess.describe())
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// guard is the precondition of a command. allow is checked before the base
// requirement.
type guard struct {
	allow    func(sess *session, cmd *common.Command) bool
	needBase bool
}

// permission allows a command if the session holds op globally or for the
// base in use
func permission(op users.Op) func(sess *session, cmd *common.Command) bool {
	return func(sess *session, cmd *common.Command) bool {
		return sess.grants.Allows(op, sess.baseName())
	}
}

var guards = map[common.CommandKind]guard{
	common.CmdHalt: {allow: permission(users.OpHalt)},
	common.CmdStat: {allow: permission(users.OpStat)},
	common.CmdUser: {allow: func(sess *session, cmd *common.Command) bool {
		// without any user the server is being bootstrapped
		return sess.grants.Allows(users.OpUser, "") || sess.srv.users.Count() == 0
	}},
	common.CmdDrop: {allow: permission(users.OpDrop)},
	common.CmdAuth: {},
	common.CmdUse: {allow: func(sess *session, cmd *common.Command) bool {
		return cmd.UseNone || sess.grants.Allows(users.OpUse, cmd.Name)
	}},
	common.CmdSub:   {needBase: true},
	common.CmdClear: {allow: permission(users.OpDel), needBase: true},
	common.CmdGet:   {allow: permission(users.OpGet), needBase: true},
	common.CmdPut:   {allow: permission(users.OpPut), needBase: true},
	common.CmdDel:   {allow: permission(users.OpDel), needBase: true},
	common.CmdList: {allow: func(sess *session, cmd *common.Command) bool {
		return sess.grants.Range(sess.baseName()).Allowed()
	}, needBase: true},
	common.CmdDebug: {allow: func(sess *session, cmd *common.Command) bool {
		return sess.user != ""
	}},
	common.CmdAck: {},
}

// dispatch checks the guard of cmd, runs its adapter and sends the reply.
// Only a failed write is returned, it closes the connection.
func (sess *session) dispatch(cmd *common.Command) error {
	switch cmd.Kind {
	case common.CmdNone, common.CmdInvalid:
		return sess.send(common.NewErrorResponse(cmd, cmd.Err))
	}

	g, ok := guards[cmd.Kind]
	adapter, found := sess.srv.adapters[cmd.Kind]
	if !ok || !found {
		return sess.send(common.NewErrorResponse(cmd, common.ErrNoCommand))
	}

	if g.allow != nil && !g.allow(sess, cmd) {
		Logger.Debugf("%s: %s not authorized", sess.describe(), cmd.Kind)
		return sess.send(common.NewErrorResponse(cmd, common.ErrNotAuthorized))
	}
	if g.needBase && sess.entry == nil {
		return sess.send(common.NewErrorResponse(cmd, common.ErrNoDatabase))
	}

	resp, err := adapter.Handle(sess, cmd)
	if err != nil {
		Logger.Debugf("%s: %s failed: %v", sess.describe(), cmd.Kind, err)
		return sess.send(common.NewErrorResponse(cmd, err))
	}
	if resp == nil {
		return nil
	}
	return sess.send(resp)
}

// send encodes and writes one reply
func (sess *session) send(resp *common.Response) error {
	line, err := sess.srv.serializer.EncodeResponse(resp)
	if err != nil {
		return errors.Wrap(err, "failed to encode response")
	}
	return sess.conn.WriteLine(line)
}

// --------------------------------------------------------------------------
// Base Handling
// --------------------------------------------------------------------------

// baseName returns the name of the base in use or an empty string
func (sess *session) baseName() string {
	if sess.entry == nil {
		return ""
	}
	return sess.entry.Name()
}

// current returns the store at the top of the navigation stack
func (sess *session) current() store.IStore {
	return sess.path[len(sess.path)-1]
}

// pathNames returns the base name followed by the sub-store names
func (sess *session) pathNames() []string {
	names := []string{sess.entry.Name()}
	return append(names, sess.current().Path()...)
}

// useBase makes entry the base of the session. The previous base is
// released after the new one was acquired.
func (sess *session) useBase(entry *registry.Entry) {
	if sess.entry != nil && sess.entry != entry {
		sess.releaseBase()
	}
	sess.entry = entry
	sess.path = []store.IStore{entry.Root()}
}

// releaseBase stops the lists of the session and releases its base
func (sess *session) releaseBase() {
	if sess.entry == nil {
		return
	}
	sess.stopLists()

	name := sess.entry.Name()
	sess.entry, sess.path = nil, nil
	if err := sess.srv.registry.Release(name, sess.id); err != nil {
		Logger.Errorf("Failed to close base %s: %v", name, err)
	}
}

// stopLists cancels all running lists and waits for them to finish
func (sess *session) stopLists() {
	sess.lists.Range(func(_ string, l *listCall) bool {
		l.cancel()
		return true
	})
	sess.wg.Wait()
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// describe returns "user@addr" for log lines
func (sess *session) describe() string {
	user := sess.user
	if user == "" {
		user = "-"
	}
	return user + "@" + sess.addr
}

// audit logs a state changing command
func (sess *session) audit(format string, args ...interface{}) {
	Logger.Infof(sess.describe()+": "+format, args...)
}

// debugf logs a data command if debugging is enabled for the base in use
func (sess *session) debugf(format string, args ...interface{}) {
	if !sess.srv.config.Debug {
		if on, _ := sess.srv.debug.Load(sess.baseName()); !on {
			return
		}
	}
	Logger.Infof(sess.describe()+" ["+sess.baseName()+"]: "+format, args...)
}
