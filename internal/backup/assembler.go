// Package backup builds the key backup archive the web app can import.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/klauspost/compress/zip"
)

type Category int

const (
	CategoryUser Category = iota
	CategoryPassword
	CategoryContact
	CategoryBankAccount
	CategorySettings
	CategoryMisc
)

// FileName is the archive member a category is written to.
func (c Category) FileName() string {
	switch c {
	case CategoryUser:
		return "user-data.json"
	case CategoryPassword:
		return "password-data.json"
	case CategoryContact:
		return "contact-data.json"
	case CategoryBankAccount:
		return "bank-account-data.json"
	case CategorySettings:
		return "settings-data.json"
	default:
		return "misc-data.json"
	}
}

// umbrellaField names a category inside all-keys.json. User records are
// spread at the top level instead.
func (c Category) umbrellaField() string {
	switch c {
	case CategoryPassword:
		return "passwordData"
	case CategoryContact:
		return "contactData"
	case CategoryBankAccount:
		return "bankAccountData"
	case CategorySettings:
		return "settingsData"
	case CategoryMisc:
		return "miscData"
	default:
		return ""
	}
}

var categories = []Category{CategoryUser, CategoryPassword, CategoryContact, CategoryBankAccount, CategorySettings, CategoryMisc}

const (
	ReadmeFile   = "README.txt"
	UmbrellaFile = "all-keys.json"
)

// Archive is a finished backup.
type Archive struct {
	Name  string
	Files []string
	Data  []byte
}

type Assembler struct {
	store extstore.Store
	log   logging.Logger
	now   func() time.Time
}

func NewAssembler(store extstore.Store, log logging.Logger) *Assembler {
	return &Assembler{store: store, log: log.With("module", "backup"), now: time.Now}
}

// Export archives the store's records, limited to email's records and the
// global settings when email is set. A category that cannot be encoded is
// left out of the archive rather than failing it.
func (a *Assembler) Export(ctx context.Context, email string) (Archive, error) {
	items, err := a.store.All(ctx)
	if err != nil {
		return Archive{}, fmt.Errorf("export: %w", err)
	}

	now := a.now()
	buckets := Categorize(items, email)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	var files []string

	add := func(name string, data []byte) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			a.log.Warn(ctx, "skipping backup file", "file", name, "error", err)
			return
		}
		files = append(files, name)
	}

	add(ReadmeFile, []byte(readme(email, now)))

	if data, err := json.MarshalIndent(umbrella(buckets), "", "  "); err != nil {
		a.log.Warn(ctx, "encoding umbrella file failed", "error", err)
	} else {
		add(UmbrellaFile, data)
	}

	for _, c := range categories {
		if len(buckets[c]) == 0 {
			continue
		}
		data, err := json.MarshalIndent(buckets[c], "", "  ")
		if err != nil {
			a.log.Warn(ctx, "encoding category failed", "file", c.FileName(), "error", err)
			continue
		}
		add(c.FileName(), data)
	}

	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("export: finish archive: %w", err)
	}

	a.log.Info(ctx, "backup assembled", "files", len(files), "bytes", buf.Len())
	return Archive{Name: Name(email, now), Files: files, Data: buf.Bytes()}, nil
}

// Categorize buckets records by key name. Keys that do not belong to the
// app are dropped.
func Categorize(items map[string]any, email string) map[Category]map[string]any {
	token := ""
	if email = strings.TrimSpace(email); email != "" {
		token = identity.Sanitize(email)
	}

	out := map[Category]map[string]any{}
	for k, v := range items {
		if !appKey(k) {
			continue
		}
		if token != "" && !belongsTo(k, token) {
			continue
		}
		c := categoryOf(k)
		if out[c] == nil {
			out[c] = map[string]any{}
		}
		out[c][k] = v
	}
	return out
}

func appKey(k string) bool {
	return strings.HasPrefix(k, "mata_") ||
		strings.Contains(k, "_vault_") ||
		strings.Contains(k, "keys_") ||
		strings.Contains(k, "_keys") ||
		strings.Contains(k, "masterKeys") ||
		strings.Contains(k, "salt_")
}

func belongsTo(k, token string) bool {
	return k == identity.CriticalKey(identity.Keys, token) ||
		k == identity.CriticalKey(identity.Salt, token) ||
		strings.Contains(k, common.LegacyPrefix+token) ||
		strings.HasPrefix(k, "mata_setting") ||
		k == common.ActiveUserKey
}

func categoryOf(k string) Category {
	switch {
	case strings.Contains(k, "user_"), strings.Contains(k, "keys_"), strings.Contains(k, "salt_"):
		return CategoryUser
	case strings.Contains(k, "password"):
		return CategoryPassword
	case strings.Contains(k, "contact"):
		return CategoryContact
	case strings.Contains(k, "bank"), strings.Contains(k, "account"):
		return CategoryBankAccount
	case strings.Contains(k, "setting"), strings.Contains(k, "config"):
		return CategorySettings
	default:
		return CategoryMisc
	}
}

func umbrella(buckets map[Category]map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range buckets[CategoryUser] {
		out[k] = v
	}
	for _, c := range categories[1:] {
		b := buckets[c]
		if b == nil {
			b = map[string]any{}
		}
		out[c.umbrellaField()] = b
	}
	return out
}

func readme(email string, now time.Time) string {
	var b strings.Builder
	b.WriteString("MATA Keys Backup\n")
	fmt.Fprintf(&b, "Created: %s\n", now.Format(time.RFC1123))
	if email != "" {
		fmt.Fprintf(&b, "User: %s\n", email)
	}
	b.WriteString("\nThis zip file contains data from your MATA extension")
	if email != "" {
		fmt.Fprintf(&b, " for user %s", email)
	}
	b.WriteString(".\nTo restore this data, please use the \"Import Backup\" feature in the MATA web application.\n")
	return b.String()
}

// Name is the archive file name: the sanitized email with dashes, then an
// ISO timestamp with ':' and '.' replaced.
func Name(email string, now time.Time) string {
	user := ""
	if email = strings.TrimSpace(email); email != "" {
		user = "-" + strings.ReplaceAll(identity.Sanitize(email), "_", "-")
	}
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	return "mata-keys-backup" + user + "-" + ts + ".zip"
}
