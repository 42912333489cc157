package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/bus"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
)

// Keys shows the bundle for args[0], or for the active user.
func (a *App) Keys(ctx context.Context, args []string) error {
	email := ""
	if len(args) > 0 {
		email = args[0]
	}

	k, err := a.storage.Keys(ctx, email)
	if err != nil {
		var re *bus.RemoteError
		if errors.Is(err, common.ErrNotFound) && errors.As(err, &re) {
			who, _ := re.Body["email"].(string)
			if who == "" {
				who = email
			}
			attempts, _ := re.Body["attempts"].([]any)
			fmt.Fprintf(a.out, "No keys found for %s (%d formats tried, trace %v)\n", who, len(attempts), re.Body["traceId"])
			return err
		}
		log.Printf("error: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Email:       %s\n", k.Email)
	fmt.Fprintf(a.out, "Source:      %s (%s format, %s)\n", k.Source, k.Format, k.Duration)
	fmt.Fprintf(a.out, "Public key:  %s\n", k.Bundle.PublicKey())
	if name := k.Bundle.DisplayName(); name != "" {
		fmt.Fprintf(a.out, "Name:        %s\n", name)
	}
	fmt.Fprintf(a.out, "Salt:        %t\n", k.Bundle.SaltString() != "")
	fmt.Fprintf(a.out, "Private key: %t\n", k.Bundle.EncryptedPrivateKey() != "")
	return nil
}

// Users lists known accounts; "-v" adds agent diagnostics.
func (a *App) Users(ctx context.Context, args []string) error {
	diag := slices.Contains(args, "-v")

	u, err := a.storage.Users(ctx, diag)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	if len(u.Users) == 0 {
		fmt.Fprintln(a.out, "No users found")
	}
	for _, email := range u.Users {
		marker := " "
		if email == a.userName {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", marker, email)
	}
	if u.Diagnostics != nil {
		b, _ := json.MarshalIndent(u.Diagnostics, "", "  ")
		fmt.Fprintf(a.out, "Diagnostics:\n%s\n", b)
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	s, err := a.storage.Sync(ctx)
	if err != nil {
		log.Printf("sync error: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Synced %d items for %d users in %s (%d errors)\n", s.SyncedCount, s.UsersProcessed, s.Duration, s.ErrorCount)
	if s.PartialSync {
		fmt.Fprintf(a.out, "Page storage unavailable, %d stored users kept\n", s.ExistingUsers)
	}
	if s.TimedOut {
		fmt.Fprintln(a.out, "Sync hit its time limit; partial results were saved")
	}
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: get <key>")
		return common.ErrInvalidRequest
	}

	v, err := a.storage.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			fmt.Fprintf(a.out, "%s: not found\n", args[0])
		} else {
			log.Printf("error: %v", err)
		}
		return err
	}
	fmt.Fprintf(a.out, "%s = %s (%s)\n", v.Key, show(v.Value), v.Source)
	return nil
}

func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: set <key> <value>")
		return common.ErrInvalidRequest
	}

	src, err := a.storage.Set(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "Saved %s (%s)\n", args[0], src)
	return nil
}

// Export writes a backup of the active user's data. "--upload" asks the
// agent to keep an off-site copy as well.
func (a *App) Export(ctx context.Context, args []string) error {
	upload := false
	path := ""
	for _, arg := range args {
		if arg == "--upload" {
			upload = true
			continue
		}
		path = arg
	}

	written, b, err := a.storage.Export(ctx, a.userName, path, upload)
	if err != nil {
		log.Printf("export error: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Backup written to %s (%d files, %d bytes)\n", written, len(b.Files), len(b.Data))
	switch {
	case b.URL != "":
		fmt.Fprintf(a.out, "Uploaded as %s\nDownload link: %s\n", b.ObjectKey, b.URL)
	case b.UploadError != "":
		fmt.Fprintf(a.out, "Upload failed: %s\n", b.UploadError)
	}
	return nil
}

// Settings prints the settings, or with "name value" updates one.
func (a *App) Settings(ctx context.Context, args []string) error {
	var (
		s   map[string]any
		err error
	)
	if len(args) >= 2 {
		s, err = a.storage.SaveSetting(ctx, args[0], strings.Join(args[1:], " "))
	} else {
		s, err = a.storage.Settings(ctx)
	}
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		fmt.Fprintf(a.out, "%s: %s\n", k, show(s[k]))
	}
	return nil
}

func show(v any) string {
	s, err := jsonx.Encode(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
