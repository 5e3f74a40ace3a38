package session

import (
	"log"

	"github.com/luxclinic/sessiond/internal/domain"
)

// State is a point-in-time snapshot of the session. It is the only view
// the rest of the application gets; nothing outside this package may
// reach the identity provider directly.
type State struct {
	Identity     *domain.Identity     `json:"identity,omitempty"`
	Profile      *domain.Profile      `json:"profile,omitempty"`
	Organization *domain.Organization `json:"organization,omitempty"`
	Loading      bool                 `json:"loading"`
}

// IsSuperAdmin reports whether the loaded profile has cross-tenant access.
func (s State) IsSuperAdmin() bool {
	return s.Profile != nil && s.Profile.IsSuperAdmin
}

// Notifier surfaces user-visible notices raised by detached session work
// (the UI cannot catch errors from loads it never initiated).
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// logNotifier is the default Notifier when none is configured.
type logNotifier struct{}

func (logNotifier) Success(msg string) { log.Printf("notice: %s", msg) }
func (logNotifier) Error(msg string)   { log.Printf("notice (error): %s", msg) }
