package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"voice-banking/internal/config"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Accounts are the operator logins of the admin surface. Passwords come from
// the environment and are only kept as bcrypt hashes.
type Accounts struct {
	byName map[string]account
}

type account struct {
	hash []byte
	role string
}

// NewAccounts builds the login table. Entries with an empty username or
// password are skipped.
func NewAccounts(cfg config.AuthConfig, adminRole, supervisorRole string) (*Accounts, error) {
	a := &Accounts{byName: map[string]account{}}
	if err := a.add(cfg.AdminUsername, cfg.AdminPassword, adminRole); err != nil {
		return nil, err
	}
	if err := a.add(cfg.SupervisorUsername, cfg.SupervisorPassword, supervisorRole); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Accounts) add(username, password, role string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}
	if _, dup := a.byName[username]; dup {
		return errors.New("auth: duplicate operator username " + username)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.byName[username] = account{hash: h, role: role}
	return nil
}

// Authenticate returns the role of username when password matches.
func (a *Accounts) Authenticate(username, password string) (string, error) {
	acc, ok := a.lookup(username)
	if !ok {
		// Burn comparable time so unknown users are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return acc.role, nil
}

// RoleOf returns the current role of username, used on token refresh.
func (a *Accounts) RoleOf(username string) (string, bool) {
	acc, ok := a.lookup(username)
	return acc.role, ok
}

func (a *Accounts) Empty() bool { return a == nil || len(a.byName) == 0 }

func (a *Accounts) lookup(username string) (account, bool) {
	if a == nil {
		return account{}, false
	}
	username = strings.TrimSpace(username)
	for name, acc := range a.byName {
		if subtle.ConstantTimeCompare([]byte(name), []byte(username)) == 1 {
			return acc, true
		}
	}
	return account{}, false
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.MinCost)
