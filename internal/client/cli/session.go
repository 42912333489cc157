package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dmitrijs2005/matakeeper/internal/client/services"
	"github.com/dmitrijs2005/matakeeper/internal/common"
)

// Whoami resolves the active user and records it as the session user. With
// no resolvable user it prints the "please log in" state.
func (a *App) Whoami(ctx context.Context) error {
	id, err := a.session.Whoami(ctx)
	if err != nil {
		var nu *services.NoUserError
		if errors.As(err, &nu) {
			a.lock()
			a.userName = ""
			fmt.Fprintln(a.out, nu.Error())
			return err
		}
		log.Printf("error: %v", err)
		return err
	}

	if a.userName != id.Email {
		a.lock()
	}
	a.userName = id.Email

	switch {
	case !id.HasKeys:
		fmt.Fprintf(a.out, "Active user: %s (no keys stored, run store-keys or log in to the web app)\n", id.Email)
	case id.Adopted:
		fmt.Fprintf(a.out, "Active user: %s (adopted, the only account found; source %s)\n", id.Email, id.Source)
	default:
		fmt.Fprintf(a.out, "Active user: %s (source %s)\n", id.Email, id.Source)
	}
	return nil
}

// StoreKeys creates a key pair for args[0] (or a prompted email), seals it
// with a password and makes that user active.
func (a *App) StoreKeys(ctx context.Context, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
			return err
		}
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		fmt.Fprintln(a.out, "Passwords do not match")
		return services.ErrWrongPassword
	}

	pub, err := a.session.StoreKeys(ctx, email, password)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	a.lock()
	a.userName = email
	fmt.Fprintf(a.out, "Keys stored for %s\nPublic key: %s\n", email, pub)
	return nil
}

// Unlock opens the active user's private key and keeps it for the session.
func (a *App) Unlock(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "No active user, please log in first")
		return services.ErrNoActiveUser
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.session.Unlock(ctx, password)
	if err != nil {
		if errors.Is(err, services.ErrWrongPassword) {
			fmt.Fprintln(a.out, "Wrong password")
		} else {
			log.Printf("error: %v", err)
		}
		return err
	}

	a.lock()
	a.unlocked = u
	a.userName = u.Email
	fmt.Fprintf(a.out, "Unlocked %s\nPublic key: %s\n", u.Email, u.PublicKey)
	return nil
}

func (a *App) Use(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: use <email>")
		return common.ErrInvalidRequest
	}
	if err := a.session.Use(ctx, args[0]); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	a.lock()
	a.userName = args[0]
	fmt.Fprintf(a.out, "Active user: %s\n", args[0])
	return nil
}

// Logout clears the active-user pointer in the agent and drops the unlocked
// key.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	a.lock()
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
