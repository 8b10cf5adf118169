package server

import (
	"context"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/cockroachdb/errors"
)

func newBaseAdapter(s *RPCServer) IRPCServerAdapter {
	return &baseAdapterImpl{srv: s}
}

type baseAdapterImpl struct {
	srv *RPCServer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *baseAdapterImpl) Kinds() []common.CommandKind {
	return []common.CommandKind{
		common.CmdSub, common.CmdClear,
		common.CmdGet, common.CmdPut, common.CmdDel,
		common.CmdList, common.CmdAck,
	}
}

func (a *baseAdapterImpl) Handle(sess *session, cmd *common.Command) (*common.Response, error) {
	switch cmd.Kind {
	case common.CmdSub:
		return a.sub(sess, cmd)
	case common.CmdClear:
		return a.clear(sess, cmd)
	case common.CmdGet:
		return a.get(sess, cmd)
	case common.CmdPut:
		return a.put(sess, cmd)
	case common.CmdDel:
		return a.del(sess, cmd)
	case common.CmdList:
		return a.list(sess, cmd)
	case common.CmdAck:
		return a.ack(sess, cmd)
	default:
		return nil, errors.Wrapf(common.ErrNoCommand, "base adapter: %s", cmd.Kind)
	}
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

// sub moves along the sub-store path. "/" returns to the root store and
// ".." to the parent, any other segment enters a sub-store. The path is
// only changed if every segment is valid.
func (a *baseAdapterImpl) sub(sess *session, cmd *common.Command) (*common.Response, error) {
	path := append([]store.IStore(nil), sess.path...)
	for _, seg := range cmd.Path {
		switch seg {
		case "/":
			path = path[:1]
		case "..":
			if len(path) > 1 {
				path = path[:len(path)-1]
			}
		default:
			child, err := path[len(path)-1].Sub(seg)
			if err != nil {
				return nil, err
			}
			path = append(path, child)
		}
	}
	sess.path = path

	resp := common.NewResponse(cmd)
	resp.Path = sess.pathNames()
	return resp, nil
}

// --------------------------------------------------------------------------
// Key Commands
// --------------------------------------------------------------------------

func (a *baseAdapterImpl) get(sess *session, cmd *common.Command) (*common.Response, error) {
	value, ok, err := sess.current().Get(cmd.Key)
	if err != nil {
		return nil, err
	}
	sess.entry.CountGet()
	sess.debugf("get %s", cmd.Key)

	resp := common.NewResponse(cmd)
	if ok {
		resp.Value = rangeiter.JSONValue(value)
	}
	return resp, nil
}

func (a *baseAdapterImpl) put(sess *session, cmd *common.Command) (*common.Response, error) {
	if err := sess.current().Set(cmd.Key, cmd.Value); err != nil {
		return nil, err
	}
	sess.entry.CountPut()
	sess.debugf("put %s", cmd.Key)
	return common.NewResponse(cmd), nil
}

// del succeeds whether or not the key exists
func (a *baseAdapterImpl) del(sess *session, cmd *common.Command) (*common.Response, error) {
	if err := sess.current().Delete(cmd.Key); err != nil {
		return nil, err
	}
	sess.entry.CountDel(1)
	sess.debugf("del %s", cmd.Key)
	return common.NewResponse(cmd), nil
}

// clear deletes the range given by the list options of cmd (all keys of the
// current store without options)
func (a *baseAdapterImpl) clear(sess *session, cmd *common.Command) (*common.Response, error) {
	q, err := rangeiter.ParseQuery(cmd.Opt)
	if err != nil {
		return nil, err
	}
	if err := sess.current().Clear(q.KeyRange()); err != nil {
		return nil, err
	}
	sess.audit("clear %s %v", sess.baseName(), sess.current().Path())
	return common.NewResponse(cmd), nil
}

// --------------------------------------------------------------------------
// Range Iteration
// --------------------------------------------------------------------------

// list starts streaming the range in the background. Each row is sent as
// {"call":..,"list":{"key":..,"value":..},"continue":true}, the stream ends
// with {"call":..} or an error reply. With the ack option the stream pauses
// until the client acknowledges rows with {"call":..,"ack":n}.
func (a *baseAdapterImpl) list(sess *session, cmd *common.Command) (*common.Response, error) {
	q, err := rangeiter.ParseQuery(cmd.Opt)
	if err != nil {
		return nil, err
	}

	key := string(cmd.Call)
	ctx, cancel := context.WithCancel(sess.ctx)
	call := &listCall{cancel: cancel, flow: rangeiter.NewFlowControl(q.Ack)}
	if _, loaded := sess.lists.LoadOrStore(key, call); loaded {
		cancel()
		return nil, errors.Wrapf(common.ErrInvalidRequest, "list %s is still running", key)
	}

	entry, current := sess.entry, sess.current()
	opts := rangeiter.Options{Cap: sess.grants.Range(entry.Name()).Cap(), Flow: call.flow}
	who := sess.describe()
	entry.CountIter()
	sess.debugf("list %s", cmd.Opt)

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		defer sess.lists.Delete(key)
		defer cancel()

		res, err := rangeiter.Run(ctx, current, q, opts, func(row rangeiter.Row) error {
			return sess.send(&common.Response{Call: cmd.Call, List: common.Raw(row), Continue: true})
		})
		entry.CountDel(res.Deleted)

		switch {
		case ctx.Err() != nil:
			Logger.Debugf("%s: list %s cancelled after %d rows (%d of %d unacknowledged)",
				who, key, res.Rows, call.flow.Outstanding(), call.flow.Window())
			return
		case err != nil:
			Logger.Debugf("%s: list %s failed after %d rows: %v", who, key, res.Rows, err)
			_ = sess.send(&common.Response{Call: cmd.Call, Error: common.ErrorText(err)})
			return
		}
		if err := sess.send(&common.Response{Call: cmd.Call}); err != nil {
			Logger.Debugf("%s: failed to end list %s: %v", who, key, err)
		}
	}()
	return nil, nil
}

// ack returns flow control credits to a running list. Acks are not
// answered, an ack for a finished list is ignored.
func (a *baseAdapterImpl) ack(sess *session, cmd *common.Command) (*common.Response, error) {
	call, ok := sess.lists.Load(string(cmd.Call))
	if ok && call.flow != nil {
		call.flow.Ack(cmd.Count)
	}
	return nil, nil
}
