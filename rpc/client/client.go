package client

import (
	"context"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/registry"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/cockroachdb/errors"
)

// Client is a netlevel client. It is safe for concurrent use, calls are
// correlated with their replies by call id.
type Client struct {
	*rpcClientAdapter
}

// Open connects to the server at config.Endpoint, retrying with
// exponential backoff up to config.RetryCount times.
//
// Usage:
//
//	c, err := client.Open(
//		common.ClientConfig{Endpoint: "localhost:8000", TimeoutSecond: 5, RetryCount: 3},
//		tcp.NewTCPClientTransport(),
//		serializer.NewJSONSerializer(),
//	)
func Open(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {
	c := &Client{newRPCClientAdapter(config, transport, serializer)}

	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()
	if _, err := c.connection(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the connection. The server releases the base of the session.
func (c *Client) Close() error {
	return c.close()
}

// --------------------------------------------------------------------------
// Session Commands
// --------------------------------------------------------------------------

// Auth authenticates the session. The credentials are replayed when the
// connection is re-established.
func (c *Client) Auth(ctx context.Context, user, pass string) error {
	req := &common.Request{Auth: common.Raw(user), Pass: common.Raw(pass)}
	if _, err := c.invokeRPCRequest(ctx, req); err != nil {
		if errors.Is(err, users.ErrAuthFailed) {
			c.forgetAuth()
		}
		return err
	}
	c.remember(req)
	return nil
}

// Use makes name the base of the session and returns the path (the base
// name). With create the base is created if it does not exist.
func (c *Client) Use(ctx context.Context, name string, create bool) ([]string, error) {
	req := &common.Request{Use: common.Raw(name)}
	if create {
		req.Opt = common.Raw(map[string]bool{"create": true})
	}
	resp, err := c.invokeRPCRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.remember(req)
	return resp.Path, nil
}

// Release releases the base of the session
func (c *Client) Release(ctx context.Context) error {
	req := &common.Request{Use: common.ReleaseOperand}
	if _, err := c.invokeRPCRequest(ctx, req); err != nil {
		return err
	}
	c.remember(req)
	return nil
}

// Sub moves along the sub-store path ("/" root, ".." parent) and returns
// the new path. The sub-store path is not restored after a reconnect.
func (c *Client) Sub(ctx context.Context, path ...string) ([]string, error) {
	req := &common.Request{Sub: common.Raw(append([]string{}, path...))}
	resp, err := c.invokeRPCRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Path, nil
}

// --------------------------------------------------------------------------
// Administration
// --------------------------------------------------------------------------

// Stat returns the server stat
func (c *Client) Stat(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.invokeRPCRequest(ctx, &common.Request{Stat: json.RawMessage("true")})
	if err != nil {
		return nil, err
	}
	return resp.Stat, nil
}

// StatBase returns the stat of an open base. ok is false if the base is
// not open.
func (c *Client) StatBase(ctx context.Context, name string) (stat registry.Stat, ok bool, err error) {
	req := &common.Request{Stat: common.Raw(map[string]string{"name": name})}
	resp, err := c.invokeRPCRequest(ctx, req)
	if err != nil || len(resp.Stat) == 0 {
		return stat, false, err
	}
	if err := json.Unmarshal(resp.Stat, &stat); err != nil {
		return stat, false, errors.Wrap(err, "failed to decode base stat")
	}
	return stat, true, nil
}

// Drop deletes a base no session uses
func (c *Client) Drop(ctx context.Context, name string) error {
	_, err := c.invokeRPCRequest(ctx, &common.Request{Drop: common.Raw(name)})
	return err
}

// Debug switches verbose server logging for a base
func (c *Client) Debug(ctx context.Context, base string, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	_, err := c.invokeRPCRequest(ctx, &common.Request{Debug: common.Raw(base), Value: common.Raw(value)})
	return err
}

// Halt shuts the server down
func (c *Client) Halt(ctx context.Context) error {
	_, err := c.invokeRPCRequest(ctx, &common.Request{Halt: json.RawMessage("true")})
	return err
}

// --------------------------------------------------------------------------
// User Administration
// --------------------------------------------------------------------------

// Users returns the names of all users
func (c *Client) Users(ctx context.Context) ([]string, error) {
	resp, err := c.user(ctx, "list", "", nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(resp.List, &names); err != nil {
		return nil, errors.Wrap(err, "failed to decode user list")
	}
	return names, nil
}

// DescribeUser returns the permissions of a user
func (c *Client) DescribeUser(ctx context.Context, name string) (users.Description, error) {
	var desc users.Description
	resp, err := c.user(ctx, "list", name, nil)
	if err != nil {
		return desc, err
	}
	if err := json.Unmarshal(resp.Rec, &desc); err != nil {
		return desc, errors.Wrap(err, "failed to decode user record")
	}
	return desc, nil
}

// AddUser creates a user. perms is a partial permission object merged
// onto the default permissions, it may be nil.
func (c *Client) AddUser(ctx context.Context, name, pass string, perms json.RawMessage) error {
	opt := map[string]json.RawMessage{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &opt); err != nil {
			return errors.Wrap(err, "permissions must be a JSON object")
		}
	}
	opt["pass"] = common.Raw(pass)
	_, err := c.user(ctx, "add", name, common.Raw(opt))
	return err
}

// DeleteUser removes a user
func (c *Client) DeleteUser(ctx context.Context, name string) error {
	_, err := c.user(ctx, "del", name, nil)
	return err
}

// SetPassword replaces the password of a user
func (c *Client) SetPassword(ctx context.Context, name, pass string) error {
	_, err := c.user(ctx, "pass", name, common.Raw(pass))
	return err
}

// SetPermissions merges a partial permission object into the global
// permissions of a user
func (c *Client) SetPermissions(ctx context.Context, name string, perms json.RawMessage) error {
	_, err := c.user(ctx, "perm", name, perms)
	return err
}

// SetBasePermissions merges per-base overrides ({"base": {...}}, null
// removes an override) into the permissions of a user
func (c *Client) SetBasePermissions(ctx context.Context, name string, overrides json.RawMessage) error {
	_, err := c.user(ctx, "base", name, overrides)
	return err
}

func (c *Client) user(ctx context.Context, action, name string, opt json.RawMessage) (*common.Response, error) {
	req := &common.Request{User: common.Raw(action), Opt: opt}
	if name != "" {
		req.Cmd = common.Raw(name)
	}
	return c.invokeRPCRequest(ctx, req)
}
