// Package keys gives typed access to a user's key bundle, whatever schema
// version wrote it.
package keys

import (
	"fmt"
	"maps"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
)

// Bundle is a stored key record. Fields may sit at the top level or under
// "user" or "keys", depending on which version of the web app wrote it.
type Bundle map[string]any

var (
	publicKeyPaths  = []string{"publicKey", "user.publicKey", "keys.publicKey"}
	namePaths       = []string{"displayName", "name", "user.displayName", "user.name", "keys.displayName"}
	saltPaths       = []string{"salt", "user.salt", "keys.salt"}
	emailPaths      = []string{"email", "user.email", "keys.email"}
	privateKeyPaths = []string{"encryptedPrivateKey", "user.encryptedPrivateKey", "keys.encryptedPrivateKey"}
)

// New builds a bundle in the current flat layout. Empty fields are left out.
func New(email, publicKey, encryptedPrivateKey, salt string) Bundle {
	b := Bundle{}
	for k, v := range map[string]string{
		"email":               email,
		"publicKey":           publicKey,
		"encryptedPrivateKey": encryptedPrivateKey,
		"salt":                salt,
	} {
		if v != "" {
			b[k] = v
		}
	}
	return b
}

// Parse turns a stored value into a Bundle. Strings must hold a JSON object.
func Parse(v any) (Bundle, error) {
	decoded, err := jsonx.DecodeStrict(v)
	if err != nil {
		return nil, fmt.Errorf("%w: key bundle: %v", common.ErrParse, err)
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: key bundle is %T, not an object", common.ErrParse, decoded)
	}
	return Bundle(m), nil
}

func (b Bundle) PublicKey() string   { return jsonx.ExtractString(map[string]any(b), publicKeyPaths...) }
func (b Bundle) DisplayName() string { return jsonx.ExtractString(map[string]any(b), namePaths...) }
func (b Bundle) Email() string       { return jsonx.ExtractString(map[string]any(b), emailPaths...) }
func (b Bundle) EncryptedPrivateKey() string {
	return jsonx.ExtractString(map[string]any(b), privateKeyPaths...)
}

// Salt returns the embedded salt. It is usually a string but some records
// carry an object.
func (b Bundle) Salt() (any, bool) {
	v, ok := jsonx.Extract(map[string]any(b), saltPaths...)
	if !ok || v == "" {
		return nil, false
	}
	return v, true
}

// SaltString is Salt for the common string case.
func (b Bundle) SaltString() string {
	return jsonx.ExtractString(map[string]any(b), saltPaths...)
}

// WithDefaults returns a copy carrying salt and email when the bundle has
// none of its own.
func (b Bundle) WithDefaults(salt any, email string) Bundle {
	out := maps.Clone(b)
	if out == nil {
		out = Bundle{}
	}
	if _, ok := out.Salt(); !ok && salt != nil && salt != "" {
		out["salt"] = salt
	}
	if out.Email() == "" && email != "" {
		out["email"] = email
	}
	return out
}

// Map exposes the bundle as a plain record for storage.
func (b Bundle) Map() map[string]any {
	return map[string]any(b)
}
