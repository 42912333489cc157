package keylookup

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
)

// Step is one backend read within an Attempt.
type Step struct {
	Backend  string        `json:"backend"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Attempt records every read made for one email format.
type Attempt struct {
	Format  string `json:"format"`
	KeysKey string `json:"keysKey"`
	SaltKey string `json:"saltKey"`
	Steps   []Step `json:"sources"`
}

// NotFoundError is returned when no format matched in any backend. The trace
// is for operators; callers should only test it with errors.Is.
type NotFoundError struct {
	TraceID  string
	Email    string
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	formats := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		formats = append(formats, a.Format)
	}
	return fmt.Sprintf("keys for %s not found (trace %s, tried %s)", e.Email, e.TraceID, strings.Join(formats, ", "))
}

func (e *NotFoundError) Unwrap() error { return common.ErrNotFound }

// IsolationError is returned when the active user is missing but one was
// set before. Users lists who could have been picked; their data is not read.
type IsolationError struct {
	Users []string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("active user is not set; refusing to pick one of %d discovered users", len(e.Users))
}

func (e *IsolationError) Unwrap() error { return common.ErrIsolationViolation }
