// Package directory is the durable record of provisioned users, the single
// source of truth for who exists. Two backends share one contract: a JSON
// document on disk and a PostgreSQL table.
package directory

import "time"

// User is one provisioned user. JSON names match the document the original
// deployment already keeps on disk.
type User struct {
	Username      string `json:"username"`
	Identity      string `json:"uuid"`
	ContactHandle string `json:"email"`
	// ExternalID links the user to a messaging-platform account. Nil for
	// users created without one.
	ExternalID *int64 `json:"telegram_id"`
	// Descriptor is computed once at creation and stored verbatim; it is
	// not refreshed if server metadata changes later.
	Descriptor string    `json:"vless_link"`
	CreatedAt  time.Time `json:"created_at"`
	// Active is reserved for a suspend/resume feature. Every record is
	// created active and nothing transitions it.
	Active bool `json:"active"`
	// TrafficUsed is reserved for accounting and always zero.
	TrafficUsed int64 `json:"traffic_used"`
}

// HasExternalID reports whether u is linked to id.
func (u *User) HasExternalID(id int64) bool {
	return u.ExternalID != nil && *u.ExternalID == id
}

// State is the whole directory in insertion order.
type State struct {
	Users []User `json:"users"`
}

// FindByUsername returns a pointer into s or nil.
func (s *State) FindByUsername(username string) *User {
	for i := range s.Users {
		if s.Users[i].Username == username {
			return &s.Users[i]
		}
	}
	return nil
}

// FindByExternalID returns the first user linked to id, or nil.
func (s *State) FindByExternalID(id int64) *User {
	for i := range s.Users {
		if s.Users[i].HasExternalID(id) {
			return &s.Users[i]
		}
	}
	return nil
}

// Append adds u at the end.
func (s *State) Append(u User) {
	s.Users = append(s.Users, u)
}

// Remove drops the user named username, keeping the order of the rest, and
// reports whether one was removed.
func (s *State) Remove(username string) bool {
	kept := make([]User, 0, len(s.Users))
	removed := false
	for _, u := range s.Users {
		if u.Username == username {
			removed = true
			continue
		}
		kept = append(kept, u)
	}
	s.Users = kept
	return removed
}
