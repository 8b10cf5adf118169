package users

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/util"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/crypto/bcrypt"
	"os"
	"sort"
	"strings"
	"sync"
)

var Logger = logger.GetLogger("users")

// FileName is the name of the credential file inside the data directory
const FileName = ".users"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Record is the persisted form of one user
type Record struct {
	Pash  string                     `json:"pash,omitempty"`
	Pass  *string                    `json:"pass,omitempty"` // legacy clear text, migrated on Load
	Perms Permissions                `json:"perms"`
	Base  map[string]BasePermissions `json:"base,omitempty"`
}

// Description is a record as shown to administrators, without the hash
type Description struct {
	Perms Permissions                `json:"perms"`
	Base  map[string]BasePermissions `json:"base,omitempty"`
}

// Option configures a Store
type Option func(s *Store)

// WithSelfPermissionChange allows users to change their own permissions
func WithSelfPermissionChange(allow bool) Option {
	return func(s *Store) {
		s.allowSelfPermChange = allow
	}
}

// WithHashCost sets the bcrypt cost of new hashes
func WithHashCost(cost int) Option {
	return func(s *Store) {
		if cost > 0 {
			s.cost = cost
		}
	}
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is the credential store. Every mutation rewrites the whole file.
type Store struct {
	path                string
	cost                int
	allowSelfPermChange bool

	mu    sync.RWMutex
	users map[string]*Record
}

// NewStore creates a store persisted at path. Nothing is read before Load.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		cost:  bcrypt.DefaultCost,
		users: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the credential file. A missing file is an empty store. Clear
// text passwords are hashed and the file is rewritten.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.users = make(map[string]*Record)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", s.path)
	}

	users := make(map[string]*Record)
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &users); err != nil {
			return errors.Wrapf(err, "failed to parse %s", s.path)
		}
	}

	migrated := false
	for name, rec := range users {
		if rec == nil {
			delete(users, name)
			continue
		}
		if rec.Pash == "" && rec.Pass != nil {
			pash, err := s.hash(*rec.Pass)
			if err != nil {
				return err
			}
			rec.Pash = pash
			migrated = true
			Logger.Infof("Migrated clear text password of user %s", name)
		}
		rec.Pass = nil
		Logger.Debugf("Loaded user %s", name)
	}
	s.users = users

	if migrated {
		return s.save()
	}
	return nil
}

// Count returns the number of users. With zero users the user commands are
// open to everyone.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Seed creates or replaces the bootstrap user with all permissions. A
// pre-hashed pash (bcrypt or legacy sha512 hex) takes precedence over pass.
func (s *Store) Seed(name, pass, pash string) error {
	if name == "" {
		return nil
	}
	if pash == "" {
		var err error
		if pash, err = s.hash(pass); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = &Record{Pash: pash, Perms: AllPermissions()}
	Logger.Infof("Seeded user %s", name)
	return s.save()
}

// Verify checks the password of a user and returns the user's grants.
// Legacy sha512 hashes are replaced with bcrypt on success.
func (s *Store) Verify(name, pass string) (Grants, error) {
	s.mu.RLock()
	rec, ok := s.users[name]
	var pash string
	if ok {
		pash = rec.Pash
	}
	s.mu.RUnlock()

	if !ok || pash == "" {
		return Grants{}, errors.Wrapf(ErrAuthFailed, "user %s", name)
	}

	if !isLegacyHash(pash) {
		if err := bcrypt.CompareHashAndPassword([]byte(pash), []byte(pass)); err != nil {
			return Grants{}, errors.Wrapf(ErrAuthFailed, "user %s", name)
		}
		return s.grants(name)
	}

	if subtle.ConstantTimeCompare([]byte(legacyHash(pass)), []byte(strings.ToLower(pash))) != 1 {
		return Grants{}, errors.Wrapf(ErrAuthFailed, "user %s", name)
	}
	if err := s.upgrade(name, pash, pass); err != nil {
		Logger.Warningf("Failed to upgrade password hash of user %s: %v", name, err)
	}
	return s.grants(name)
}

// Add creates a user with the given password and permissions
func (s *Store) Add(name, pass string, perms Permissions) error {
	if name == "" {
		return errors.Wrap(ErrNoSuchUser, "empty user name")
	}
	pash, err := s.hash(pass)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return errors.Wrapf(ErrUserExists, "user %s", name)
	}
	s.users[name] = &Record{Pash: pash, Perms: perms}
	return s.save()
}

// Delete removes a user. Users cannot delete themselves.
func (s *Store) Delete(actor, name string) error {
	if actor != "" && actor == name {
		return errors.Wrapf(ErrSelfDelete, "user %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return errors.Wrapf(ErrNoSuchUser, "user %s", name)
	}
	delete(s.users, name)
	return s.save()
}

// SetPassword replaces the password of a user
func (s *Store) SetPassword(name, pass string) error {
	pash, err := s.hash(pass)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[name]
	if !ok {
		return errors.Wrapf(ErrNoSuchUser, "user %s", name)
	}
	rec.Pash = pash
	return s.save()
}

// SetPermissions merges patch (a partial permission object) into the global
// permissions of a user.
func (s *Store) SetPermissions(actor, name string, patch json.RawMessage) error {
	if err := s.checkSelf(actor, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[name]
	if !ok {
		return errors.Wrapf(ErrNoSuchUser, "user %s", name)
	}

	perms := rec.Perms
	if err := mergeJSON(patch, &perms); err != nil {
		return err
	}
	rec.Perms = perms
	return s.save()
}

// SetBasePermissions merges patch, a map of base name to partial override,
// into the per-base overrides of a user. A null override removes it.
func (s *Store) SetBasePermissions(actor, name string, patch json.RawMessage) error {
	if err := s.checkSelf(actor, name); err != nil {
		return err
	}

	var overrides map[string]json.RawMessage
	if err := mergeJSON(patch, &overrides); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[name]
	if !ok {
		return errors.Wrapf(ErrNoSuchUser, "user %s", name)
	}

	base := make(map[string]BasePermissions, len(rec.Base)+len(overrides))
	for b, p := range rec.Base {
		base[b] = p
	}
	for b, raw := range overrides {
		if len(raw) == 0 || string(raw) == "null" {
			delete(base, b)
			continue
		}
		p := base[b]
		if err := mergeJSON(raw, &p); err != nil {
			return err
		}
		base[b] = p
	}
	rec.Base = base
	return s.save()
}

// List returns the sorted user names
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the permissions of a user
func (s *Store) Describe(name string) (Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[name]
	if !ok {
		return Description{}, errors.Wrapf(ErrNoSuchUser, "user %s", name)
	}
	return Description{Perms: rec.Perms, Base: copyBase(rec.Base)}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *Store) checkSelf(actor, name string) error {
	if !s.allowSelfPermChange && actor != "" && actor == name {
		return errors.Wrapf(ErrSelfPermissionChange, "user %s", name)
	}
	return nil
}

func (s *Store) grants(name string) (Grants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[name]
	if !ok {
		return Grants{}, errors.Wrapf(ErrAuthFailed, "user %s", name)
	}
	return Grants{Perms: rec.Perms, Base: copyBase(rec.Base)}, nil
}

// upgrade replaces a verified legacy hash, unless it changed meanwhile
func (s *Store) upgrade(name, old, pass string) error {
	pash, err := s.hash(pass)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[name]
	if !ok || rec.Pash != old {
		return nil
	}
	rec.Pash = pash
	Logger.Infof("Upgraded password hash of user %s", name)
	return s.save()
}

func (s *Store) hash(pass string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pass), s.cost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(b), nil
}

// save writes the file to a temporary file and renames it over the old one.
// The caller must hold the lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.users, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to encode users")
	}
	return util.WriteFileAtomic(s.path, data, 0o600)
}

func mergeJSON(patch json.RawMessage, v any) error {
	if len(patch) == 0 || string(patch) == "null" {
		return nil
	}
	if err := json.Unmarshal(patch, v); err != nil {
		return errors.Wrapf(ErrInvalidPermissions, "%v", err)
	}
	return nil
}

func copyBase(base map[string]BasePermissions) map[string]BasePermissions {
	if base == nil {
		return nil
	}
	out := make(map[string]BasePermissions, len(base))
	for b, p := range base {
		out[b] = p
	}
	return out
}

// legacy hashes are the hex encoded sha512 of the password
func isLegacyHash(pash string) bool {
	if len(pash) != sha512.Size*2 {
		return false
	}
	_, err := hex.DecodeString(pash)
	return err == nil
}

func legacyHash(pass string) string {
	sum := sha512.Sum512([]byte(pass))
	return hex.EncodeToString(sum[:])
}
