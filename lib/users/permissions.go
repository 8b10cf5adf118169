package users

import (
	"bytes"
	"encoding/json"
	"github.com/cockroachdb/errors"
	"math"
	"strconv"
)

// --------------------------------------------------------------------------
// Range Grants
// --------------------------------------------------------------------------

// RangeGrant is the graded range permission. On the wire it is false
// (denied), true (unlimited) or a positive row cap.
type RangeGrant int64

const (
	RangeDenied    RangeGrant = 0
	RangeUnlimited RangeGrant = -1
)

// Allowed reports whether any rows may be listed
func (g RangeGrant) Allowed() bool {
	return g != RangeDenied
}

// Cap returns the maximum number of rows per list call. Unlimited grants
// return math.MaxInt64.
func (g RangeGrant) Cap() int64 {
	switch {
	case g == RangeUnlimited:
		return math.MaxInt64
	case g < 0:
		return 0
	}
	return int64(g)
}

// Max returns the wider of both grants
func (g RangeGrant) Max(other RangeGrant) RangeGrant {
	if g == RangeUnlimited || other == RangeUnlimited {
		return RangeUnlimited
	}
	if other > g {
		return other
	}
	return g
}

func (g RangeGrant) MarshalJSON() ([]byte, error) {
	switch {
	case g == RangeUnlimited:
		return []byte("true"), nil
	case g <= 0:
		return []byte("false"), nil
	}
	return []byte(strconv.FormatInt(int64(g), 10)), nil
}

func (g *RangeGrant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*g = RangeUnlimited
		return nil
	case "false", "null":
		*g = RangeDenied
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrapf(ErrInvalidPermissions, "range must be a boolean or a number, got %s", data)
	}
	switch {
	case n <= 0:
		*g = RangeDenied
	case n >= math.MaxInt64:
		*g = RangeUnlimited
	default:
		*g = RangeGrant(n)
	}
	return nil
}

// --------------------------------------------------------------------------
// Permission Sets
// --------------------------------------------------------------------------

// Op names a permission checked by the dispatcher
type Op string

const (
	OpHalt   Op = "halt"
	OpStat   Op = "stat"
	OpDrop   Op = "drop"
	OpUser   Op = "user"
	OpCreate Op = "create"
	OpUse    Op = "use"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDel    Op = "del"
	OpRange  Op = "range"
)

// Permissions is the global permission set of a user
type Permissions struct {
	Halt   bool       `json:"halt"`
	Stat   bool       `json:"stat"`
	Drop   bool       `json:"drop"`
	User   bool       `json:"user"`
	Create bool       `json:"create"`
	Use    bool       `json:"use"`
	Get    bool       `json:"get"`
	Put    bool       `json:"put"`
	Del    bool       `json:"del"`
	Range  RangeGrant `json:"range"`
}

// BasePermissions overrides the global permissions for one base. Grants
// extend the global set, they never restrict it.
type BasePermissions struct {
	Stat  bool       `json:"stat,omitempty"`
	Use   bool       `json:"use,omitempty"`
	Get   bool       `json:"get,omitempty"`
	Put   bool       `json:"put,omitempty"`
	Del   bool       `json:"del,omitempty"`
	Range RangeGrant `json:"range,omitempty"`
}

// DefaultPermissions are given to users created without explicit permissions
func DefaultPermissions() Permissions {
	return Permissions{Stat: true, Use: true, Get: true, Range: RangeUnlimited}
}

// AllPermissions are given to the seed user
func AllPermissions() Permissions {
	return Permissions{
		Halt: true, Stat: true, Drop: true, User: true, Create: true,
		Use: true, Get: true, Put: true, Del: true, Range: RangeUnlimited,
	}
}

// Allows reports whether op is granted. Range counts as granted unless denied.
func (p Permissions) Allows(op Op) bool {
	switch op {
	case OpHalt:
		return p.Halt
	case OpStat:
		return p.Stat
	case OpDrop:
		return p.Drop
	case OpUser:
		return p.User
	case OpCreate:
		return p.Create
	case OpUse:
		return p.Use
	case OpGet:
		return p.Get
	case OpPut:
		return p.Put
	case OpDel:
		return p.Del
	case OpRange:
		return p.Range.Allowed()
	}
	return false
}

// Allows reports whether the override grants op. Ops that cannot be granted
// per base are never allowed.
func (p BasePermissions) Allows(op Op) bool {
	switch op {
	case OpStat:
		return p.Stat
	case OpUse:
		return p.Use
	case OpGet:
		return p.Get
	case OpPut:
		return p.Put
	case OpDel:
		return p.Del
	case OpRange:
		return p.Range.Allowed()
	}
	return false
}

// --------------------------------------------------------------------------
// Grants
// --------------------------------------------------------------------------

// Grants is the snapshot of a user's permissions taken at authentication.
// The zero value grants nothing.
type Grants struct {
	Perms Permissions
	Base  map[string]BasePermissions
}

// Allows resolves op for base as global OR per-base override
func (g Grants) Allows(op Op, base string) bool {
	if g.Perms.Allows(op) {
		return true
	}
	if base == "" {
		return false
	}
	return g.Base[base].Allows(op)
}

// Range returns the effective range grant for base, the wider of the
// global grant and the override.
func (g Grants) Range(base string) RangeGrant {
	r := g.Perms.Range
	if base != "" {
		r = r.Max(g.Base[base].Range)
	}
	return r
}
