// Package models defines the agent replies the CLI works with.
package models

import (
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/keys"
)

// Keys is a resolved key bundle together with where it was found.
type Keys struct {
	Email    string
	Source   string
	Format   string
	Adopted  bool
	Duration time.Duration
	Bundle   keys.Bundle
}

// Users lists the identities the agent can see. Diagnostics is nil unless
// requested.
type Users struct {
	Users       []string
	Diagnostics map[string]any
}

type SyncSummary struct {
	SyncedCount    int
	ErrorCount     int
	UsersProcessed int
	Duration       time.Duration
	Message        string
	PartialSync    bool
	ExistingUsers  int
	TimedOut       bool
}

type Value struct {
	Key    string
	Value  any
	Source string
}

// Backup is an exported archive. ObjectKey and URL are set when the agent
// uploaded a copy; UploadError when that upload failed.
type Backup struct {
	Name        string
	Files       []string
	Data        []byte
	ObjectKey   string
	URL         string
	UploadError string
}
