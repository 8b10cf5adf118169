package server

import (
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/registry"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/cockroachdb/errors"
)

// useOptions are the options of the use command
type useOptions struct {
	Create bool `json:"create"`
}

func newAccountAdapter(s *RPCServer) IRPCServerAdapter {
	return &accountAdapterImpl{srv: s}
}

type accountAdapterImpl struct {
	srv *RPCServer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *accountAdapterImpl) Kinds() []common.CommandKind {
	return []common.CommandKind{common.CmdAuth, common.CmdUse, common.CmdUser}
}

func (a *accountAdapterImpl) Handle(sess *session, cmd *common.Command) (*common.Response, error) {
	switch cmd.Kind {
	case common.CmdAuth:
		return a.auth(sess, cmd)
	case common.CmdUse:
		return a.use(sess, cmd)
	case common.CmdUser:
		return a.user(sess, cmd)
	default:
		return nil, errors.Wrapf(common.ErrNoCommand, "account adapter: %s", cmd.Kind)
	}
}

// --------------------------------------------------------------------------
// Session Commands
// --------------------------------------------------------------------------

// auth replaces the identity of the session. A failed attempt leaves the
// session without any permission, the base in use stays open.
func (a *accountAdapterImpl) auth(sess *session, cmd *common.Command) (*common.Response, error) {
	grants, err := a.srv.users.Verify(cmd.Name, cmd.Pass)
	if err != nil {
		Logger.Warningf("Authentication of %s from %s failed", cmd.Name, sess.addr)
		sess.user, sess.grants = "", users.Grants{}
		return nil, err
	}
	sess.user, sess.grants = cmd.Name, grants
	sess.audit("authenticated")
	return common.NewResponse(cmd), nil
}

func (a *accountAdapterImpl) use(sess *session, cmd *common.Command) (*common.Response, error) {
	if cmd.UseNone {
		sess.releaseBase()
		return common.NewResponse(cmd), nil
	}

	var opts useOptions
	if common.Present(cmd.Opt) {
		if err := json.Unmarshal(cmd.Opt, &opts); err != nil {
			return nil, errors.Wrap(common.ErrInvalidRequest, "use expects an options object")
		}
	}

	entry, err := a.srv.registry.Acquire(cmd.Name,
		registry.Session{ID: sess.id, User: sess.user},
		registry.AcquireOptions{Create: opts.Create, MayCreate: sess.grants.Allows(users.OpCreate, "")},
	)
	if err != nil {
		return nil, err
	}
	sess.useBase(entry)
	sess.audit("use %s", cmd.Name)

	resp := common.NewResponse(cmd)
	resp.Path = sess.pathNames()
	return resp, nil
}

// --------------------------------------------------------------------------
// User Administration
// --------------------------------------------------------------------------

// userOptions carries the password of user add next to the permissions
type userOptions struct {
	Pass string `json:"pass"`
}

// user dispatches the user sub command. The target user is in cmd.Target,
// the options (permissions, password) in cmd.Opt.
func (a *accountAdapterImpl) user(sess *session, cmd *common.Command) (*common.Response, error) {
	accounts := a.srv.users
	resp := common.NewResponse(cmd)

	switch cmd.Name {
	case "list":
		if cmd.Target == "" {
			resp.List = common.Raw(accounts.List())
			return resp, nil
		}
		desc, err := accounts.Describe(cmd.Target)
		if err != nil {
			return nil, err
		}
		resp.Rec = common.Raw(desc)
		return resp, nil

	case "add":
		perms := users.DefaultPermissions()
		var opts userOptions
		if common.Present(cmd.Opt) {
			if err := json.Unmarshal(cmd.Opt, &perms); err != nil {
				return nil, errors.Wrap(common.ErrInvalidRequest, "user add expects a permission object")
			}
			if err := json.Unmarshal(cmd.Opt, &opts); err != nil {
				return nil, errors.Wrap(common.ErrInvalidRequest, "user add expects a password string")
			}
		}
		if err := accounts.Add(cmd.Target, opts.Pass, perms); err != nil {
			return nil, err
		}
		sess.audit("user add %s", cmd.Target)

	case "del":
		if err := accounts.Delete(sess.user, cmd.Target); err != nil {
			return nil, err
		}
		sess.audit("user del %s", cmd.Target)

	case "pass":
		pass, err := password(cmd.Opt)
		if err != nil {
			return nil, err
		}
		if err := accounts.SetPassword(cmd.Target, pass); err != nil {
			return nil, err
		}
		sess.audit("user pass %s", cmd.Target)

	case "perm", "perms":
		if err := accounts.SetPermissions(sess.user, cmd.Target, cmd.Opt); err != nil {
			return nil, err
		}
		sess.audit("user perm %s %s", cmd.Target, cmd.Opt)

	case "base":
		if err := accounts.SetBasePermissions(sess.user, cmd.Target, cmd.Opt); err != nil {
			return nil, err
		}
		sess.audit("user base %s %s", cmd.Target, cmd.Opt)

	default:
		return nil, errors.Wrapf(common.ErrInvalidRequest, "unknown user command %q", cmd.Name)
	}
	return resp, nil
}

// password reads the new password of user pass, given as a string or as
// {"pass": "..."}
func password(opt json.RawMessage) (string, error) {
	var pass string
	if err := json.Unmarshal(opt, &pass); err == nil {
		return pass, nil
	}
	var opts userOptions
	if err := json.Unmarshal(opt, &opts); err != nil || opts.Pass == "" {
		return "", errors.Wrap(common.ErrInvalidRequest, "user pass expects a password")
	}
	return opts.Pass, nil
}
