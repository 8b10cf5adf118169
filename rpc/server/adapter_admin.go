package server

import (
	"encoding/json"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/cockroachdb/errors"
)

// serverStat is the reply of a plain stat command
type serverStat struct {
	Open     []string        `json:"open"`
	List     []string        `json:"list"`
	Mark     int64           `json:"mark"`    // session start, unix milliseconds
	Started  int64           `json:"started"` // server start, unix milliseconds
	Sessions int             `json:"sessions"`
	Gets     uint64          `json:"gets"`
	Puts     uint64          `json:"puts"`
	Dels     uint64          `json:"dels"`
	Iter     uint64          `json:"iter"`
	Dbug     map[string]bool `json:"dbug"`
}

// statOptions selects a part of the stat reply
type statOptions struct {
	List string `json:"list"` // a single field of the server stat
	Name string `json:"name"` // the stat of an open base
}

func newAdminAdapter(s *RPCServer) IRPCServerAdapter {
	return &adminAdapterImpl{srv: s}
}

type adminAdapterImpl struct {
	srv *RPCServer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *adminAdapterImpl) Kinds() []common.CommandKind {
	return []common.CommandKind{common.CmdHalt, common.CmdStat, common.CmdDrop, common.CmdDebug}
}

func (a *adminAdapterImpl) Handle(sess *session, cmd *common.Command) (*common.Response, error) {
	switch cmd.Kind {
	case common.CmdHalt:
		return a.halt(sess, cmd)
	case common.CmdStat:
		return a.stat(sess, cmd)
	case common.CmdDrop:
		return a.drop(sess, cmd)
	case common.CmdDebug:
		return a.setDebug(sess, cmd)
	default:
		return nil, errors.Wrapf(common.ErrNoCommand, "admin adapter: %s", cmd.Kind)
	}
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// halt answers first, then shuts the server down in the background
func (a *adminAdapterImpl) halt(sess *session, cmd *common.Command) (*common.Response, error) {
	sess.audit("halt")
	if err := sess.send(common.NewResponse(cmd)); err != nil {
		Logger.Warningf("Failed to confirm halt to %s: %v", sess.describe(), err)
	}
	go a.srv.Halt()
	return nil, nil
}

func (a *adminAdapterImpl) stat(sess *session, cmd *common.Command) (*common.Response, error) {
	var opts statOptions
	if common.Present(cmd.Opt) && string(cmd.Opt) != "true" {
		if err := json.Unmarshal(cmd.Opt, &opts); err != nil {
			return nil, errors.Wrap(common.ErrInvalidRequest, "stat expects an options object")
		}
	}

	resp := common.NewResponse(cmd)

	// stat of one base
	if opts.Name != "" {
		if st, ok := a.srv.registry.Stat(opts.Name); ok {
			resp.Stat = common.Raw(st)
		}
		return resp, nil
	}

	st, err := a.serverStat(sess)
	if err != nil {
		return nil, err
	}
	raw := common.Raw(st)

	// a single field
	if opts.List != "" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, errors.Wrap(err, "failed to select stat field")
		}
		raw = fields[opts.List]
	}
	resp.Stat = raw
	return resp, nil
}

func (a *adminAdapterImpl) serverStat(sess *session) (serverStat, error) {
	list, err := a.srv.registry.List()
	if err != nil {
		return serverStat{}, err
	}
	totals := a.srv.registry.Totals()

	dbug := make(map[string]bool)
	a.srv.debug.Range(func(name string, on bool) bool {
		dbug[name] = on
		return true
	})

	return serverStat{
		Open:     a.srv.registry.Open(),
		List:     list,
		Mark:     sess.created.UnixMilli(),
		Started:  a.srv.started.UnixMilli(),
		Sessions: a.srv.sessions.Size(),
		Gets:     totals.Gets,
		Puts:     totals.Puts,
		Dels:     totals.Dels,
		Iter:     totals.Iter,
		Dbug:     dbug,
	}, nil
}

func (a *adminAdapterImpl) drop(sess *session, cmd *common.Command) (*common.Response, error) {
	if err := a.srv.registry.Drop(cmd.Name); err != nil {
		return nil, err
	}
	sess.audit("drop %s", cmd.Name)
	return common.NewResponse(cmd), nil
}

func (a *adminAdapterImpl) setDebug(sess *session, cmd *common.Command) (*common.Response, error) {
	a.srv.debug.Store(cmd.Name, cmd.On)
	sess.audit("debug %s %t", cmd.Name, cmd.On)
	return common.NewResponse(cmd), nil
}
