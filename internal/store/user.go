package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned by CreateUser when the username is already
// taken (case-insensitively — spec §8's user-uniqueness invariant).
var ErrUserExists = errors.New("store: username already exists")

// ErrUserNotFound is returned by lookups that find no matching record.
var ErrUserNotFound = errors.New("store: user not found")

// ErrBadCredentials is returned by Authenticate on a wrong password or
// unknown username; the two cases are not distinguished to avoid
// username enumeration via timing or error text.
var ErrBadCredentials = errors.New("store: bad credentials")

// User is one account record. Adapted from the teacher's internal/user.User,
// trimmed to the fields the script interpreter's ACS codes and C3's
// session binding actually need, plus the dual credential fields the spec's
// Open Question decision calls for: a preferred bcrypt hash, and a legacy
// XOR-masked field kept only for the at-rest-obfuscation invariant C8/C9
// style tooling might still read.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	BcryptHash   string    `json:"bcryptHash"`
	LegacyXOR    []byte    `json:"legacyXor"`
	Handle       string    `json:"handle"`
	RealName     string    `json:"realName"`
	AccessLevel  int       `json:"accessLevel"`
	Flags        string    `json:"flags"`
	TimeLimitMin int       `json:"timeLimitMin"`
	TimesCalled  int       `json:"timesCalled"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin"`
	Validated    bool      `json:"validated"`
	DeletedUser  bool      `json:"deletedUser"`
}

// xorKeyFor derives a per-record XOR key from the username, so the legacy
// field is not a single fixed-key cipher across every record.
func xorKeyFor(username string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(username)))
	return sum[:]
}

func xorMask(key, data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// UserStore is the C6 operations surface for users.
type UserStore struct {
	reg *Registry[User]
}

func NewUserStore(dir string) (*UserStore, error) {
	reg, err := NewRegistry[User](dir)
	if err != nil {
		return nil, err
	}
	return &UserStore{reg: reg}, nil
}

// CreateUser hashes password with bcrypt, also writes the legacy
// XOR-masked plaintext (per the Open Question decision to carry both
// fields), and rejects a case-insensitive duplicate username.
func (s *UserStore) CreateUser(username, password, handle, realName string) (User, error) {
	lower := strings.ToLower(username)
	dup := false
	s.reg.Iterate(func(_ int, u User) bool {
		if strings.ToLower(u.Username) == lower {
			dup = true
			return false
		}
		return true
	})
	if dup {
		return User{}, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("store: hash password: %w", err)
	}

	u := User{
		Username:    username,
		BcryptHash:  string(hash),
		LegacyXOR:   xorMask(xorKeyFor(username), []byte(password)),
		Handle:      handle,
		RealName:    realName,
		AccessLevel: 1,
		CreatedAt:   time.Now(),
	}
	id, err := s.reg.Add(u)
	if err != nil {
		return User{}, err
	}
	u.ID = id
	return u, nil
}

// Authenticate verifies password against the bcrypt hash. The legacy XOR
// field is never consulted for auth decisions — it exists only so
// external tooling built against the old at-rest format keeps working.
func (s *UserStore) Authenticate(username, password string) (User, error) {
	u, ok, err := s.findByUsername(username)
	if err != nil {
		return User{}, err
	}
	if !ok || u.DeletedUser {
		return User{}, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.BcryptHash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *UserStore) findByUsername(username string) (User, bool, error) {
	lower := strings.ToLower(username)
	var found User
	var ok bool
	err := s.reg.Iterate(func(_ int, u User) bool {
		if strings.ToLower(u.Username) == lower {
			found, ok = u, true
			return false
		}
		return true
	})
	return found, ok, err
}

func (s *UserStore) SearchByID(id int) (User, bool, error) {
	return s.reg.SearchByID(id)
}

func (s *UserStore) Update(id int, u User) error {
	return s.reg.Update(id, u)
}

// Iterate exposes the raw registry walk (spec §4.6's "iterate ... with
// opaque context") for admin tooling and reports.
func (s *UserStore) Iterate(fn func(id int, u User) bool) error {
	return s.reg.Iterate(fn)
}
