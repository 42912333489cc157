// Package identity maps user emails onto storage keys.
//
// Sanitization replaces "@" and "." with "_". The mapping is lossy:
// "a.b@c.com" and "a_b@c.com" yield the same token, and nothing here tries
// to tell them apart.
package identity

import (
	"regexp"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/common"
)

// Kind enumerates the critical record kinds kept in sync.
type Kind int

const (
	ActiveUser Kind = iota
	Keys
	Salt
)

func (k Kind) String() string {
	switch k {
	case ActiveUser:
		return "active_user"
	case Keys:
		return "keys"
	case Salt:
		return "salt"
	}
	return "unknown"
}

var sanitizer = strings.NewReplacer("@", "_", ".", "_")

// Sanitize returns the token form of an email. Case is preserved.
func Sanitize(email string) string {
	return sanitizer.Replace(email)
}

// CriticalKey builds the storage key for kind. The token is ignored for
// ActiveUser, which is a singleton.
func CriticalKey(kind Kind, token string) string {
	switch kind {
	case Keys:
		return common.KeysPrefix + token
	case Salt:
		return common.SaltPrefix + token
	default:
		return common.ActiveUserKey
	}
}

// LegacyKey is the historical user_<token>_<dataType> naming. Writers keep it
// in step with the critical key; lookups fall back to it. Tokens pass through
// unchanged.
func LegacyKey(email, dataType string) string {
	return common.LegacyPrefix + Sanitize(email) + "_" + dataType
}

var criticalKeyRe = regexp.MustCompile(`^mata_(keys|salt)_(.+)$`)

// matchCritical splits a mata_keys_/mata_salt_ key into kind and token.
// Timestamp siblings (…_updated) are not critical keys.
func matchCritical(key string) (kind, token string, ok bool) {
	if strings.HasSuffix(key, common.UpdatedSuffix) {
		return "", "", false
	}
	m := criticalKeyRe.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// TokenFromKey extracts the user token from a mata_keys_/mata_salt_ key.
func TokenFromKey(key string) (string, bool) {
	_, token, ok := matchCritical(key)
	return token, ok
}

// LegacySibling maps a mata_keys_/mata_salt_ key onto its legacy
// user_<token>_<kind> twin.
func LegacySibling(key string) (string, bool) {
	kind, token, ok := matchCritical(key)
	if !ok {
		return "", false
	}
	return common.LegacyPrefix + token + "_" + kind, true
}

// IsCritical reports whether key is an active-user, keys or salt record.
func IsCritical(key string) bool {
	if key == common.ActiveUserKey {
		return true
	}
	_, ok := TokenFromKey(key)
	return ok
}

// Unsanitize guesses an email back from a token with at least three parts:
// the first part is the local name, the rest the domain. Shorter tokens are
// returned unchanged.
func Unsanitize(token string) string {
	parts := strings.Split(token, "_")
	if len(parts) < 3 {
		return token
	}
	return parts[0] + "@" + strings.Join(parts[1:], ".")
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Variants lists the key forms historically used for one email, in lookup
// order and without duplicates: sanitized, raw, every non-alphanumeric
// character replaced, lower-cased and trimmed.
func Variants(email string) []string {
	candidates := []string{
		Sanitize(email),
		email,
		nonAlnum.ReplaceAllString(email, "_"),
		strings.ToLower(strings.TrimSpace(email)),
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
