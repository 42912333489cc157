// Package services contains application services for the matakeeper CLI.
// This file defines the session service: who the popup acts for, storing a
// freshly generated key bundle, and unlocking the active user's private key.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/bus"
	"github.com/dmitrijs2005/matakeeper/internal/client/client"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/cryptox"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
)

var (
	ErrNoActiveUser  = errors.New("no active user")
	ErrWrongPassword = errors.New("wrong password")
)

// NoUserError means no identity could be resolved. Users lists the accounts
// the agent found but refused to pick (isolation), if any.
type NoUserError struct {
	Users []string
}

func (e *NoUserError) Error() string {
	if len(e.Users) == 0 {
		return "no active user, please log in"
	}
	return fmt.Sprintf("no active user, please log in (known accounts: %s)", strings.Join(e.Users, ", "))
}

func (e *NoUserError) Unwrap() error { return ErrNoActiveUser }

// Identity is the resolved active user. HasKeys is false when the pointer
// names a user whose key bundle is missing.
type Identity struct {
	Email   string
	Source  string
	Adopted bool
	HasKeys bool
}

// Unlocked holds a decrypted private key. Callers wipe PrivateKey when done.
type Unlocked struct {
	Email      string
	PublicKey  string
	PrivateKey []byte
}

// SessionService defines the identity operations of the CLI.
//
// Contract:
//   - Whoami: resolve the active user; *NoUserError when there is none.
//   - StoreKeys: generate a key pair, seal it with a password-derived key and
//     store the bundle as the active user's.
//   - Unlock: derive the key again and open the active user's private key.
//   - Use / Logout: move or clear the active-user pointer.
//
// All methods must honor context cancellation/timeouts.
type SessionService interface {
	Whoami(ctx context.Context) (*Identity, error)
	StoreKeys(ctx context.Context, email string, password []byte) (string, error)
	Unlock(ctx context.Context, password []byte) (*Unlocked, error)
	Use(ctx context.Context, email string) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type sessionService struct {
	client client.Client
}

func NewSessionService(c client.Client) SessionService {
	return &sessionService{client: c}
}

func (s *sessionService) Whoami(ctx context.Context) (*Identity, error) {
	k, err := s.client.GetKeys(ctx, "")
	if err == nil {
		return &Identity{Email: k.Email, Source: k.Source, Adopted: k.Adopted, HasKeys: true}, nil
	}

	var re *bus.RemoteError
	if !errors.As(err, &re) {
		return nil, err
	}
	switch {
	case errors.Is(err, common.ErrIsolationViolation):
		return nil, &NoUserError{Users: bodyStrings(re.Body, "users")}
	case errors.Is(err, common.ErrNotFound):
		if email, _ := re.Body["email"].(string); email != "" {
			return &Identity{Email: email}, nil
		}
		return nil, &NoUserError{}
	default:
		return nil, err
	}
}

// StoreKeys returns the new public key.
func (s *sessionService) StoreKeys(ctx context.Context, email string, password []byte) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", common.ErrInvalidRequest)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is required", common.ErrInvalidRequest)
	}

	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(kp.PrivateKey)

	dk, err := cryptox.DeriveKey(string(password), "")
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	enc, err := cryptox.EncryptPrivateKey(kp, dk.Key)
	if err != nil {
		return "", fmt.Errorf("encrypt private key: %w", err)
	}

	if err := s.client.StoreKeys(ctx, email, keys.New(email, kp.PublicKey, enc, dk.Salt), true); err != nil {
		return "", err
	}
	return kp.PublicKey, nil
}

func (s *sessionService) Unlock(ctx context.Context, password []byte) (*Unlocked, error) {
	k, err := s.client.GetKeys(ctx, "")
	if err != nil {
		return nil, err
	}

	salt := k.Bundle.SaltString()
	enc := k.Bundle.EncryptedPrivateKey()
	if salt == "" || enc == "" {
		return nil, fmt.Errorf("%w: %s has no encrypted private key", common.ErrNotFound, k.Email)
	}

	dk, err := cryptox.DeriveKey(string(password), salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	priv, err := cryptox.DecryptPrivateKey(enc, dk.Key)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return &Unlocked{Email: k.Email, PublicKey: k.Bundle.PublicKey(), PrivateKey: priv}, nil
}

func (s *sessionService) Use(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrInvalidRequest)
	}
	return s.client.SetActiveUser(ctx, email)
}

func (s *sessionService) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

// Ping proxies a liveness check to the underlying client.
func (s *sessionService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (s *sessionService) Close(ctx context.Context) error {
	return s.client.Close()
}

func bodyStrings(body bus.Response, key string) []string {
	list, _ := body[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
