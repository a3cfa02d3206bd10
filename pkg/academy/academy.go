// Package academy contains the core domain types for the academy catalog service.
package academy

import "time"

// Session represents a published course session (an "evenement" in the catalog API).
type Session struct {
	StartTime        *time.Time `json:"starttime"`        // Scheduled start, nil when not yet fixed
	EndTime          *time.Time `json:"endtime"`          // Scheduled end
	CreatedAt        *time.Time `json:"createdat"`        // Publication timestamp
	Title            string     `json:"titre"`            // Display title
	ShortDescription string     `json:"descriptionshort"` // HTML fragment shown in listings
	ID               int        `json:"id"`
}

// PublishedAt returns the timestamp used to decide whether a session is newly
// published, preferring the creation time and falling back to the start time.
// The second return value is false when the session carries neither, in which
// case it must never be treated as new.
func (s *Session) PublishedAt() (time.Time, bool) {
	switch {
	case s.CreatedAt != nil:
		return *s.CreatedAt, true
	case s.StartTime != nil:
		return *s.StartTime, true
	default:
		return time.Time{}, false
	}
}

// Experience is one entry in a user's professional history.
type Experience struct {
	Title     string `json:"titre"`
	Company   string `json:"entreprise"`
	StartDate string `json:"datedebut"`
	EndDate   string `json:"datefin"`
	ID        int    `json:"id"`
}

// Certification is a certificate attached to a user profile.
type Certification struct {
	Title      string `json:"titre"`
	Link       string `json:"lien"`
	ObtainedAt string `json:"dateobtention"`
	ValidUntil string `json:"datevalidite"`
	ID         int    `json:"id"`
}

// Diploma is a degree attached to a user profile.
type Diploma struct {
	Title       string `json:"titre"`
	Institution string `json:"etablissement"`
	ObtainedAt  string `json:"dateobtention"`
	ID          int    `json:"id"`
}

// Profile is the server-owned user record. The client treats it as an opaque
// snapshot of the last successful fetch; edits are submitted wholesale and the
// response replaces the local copy.
type Profile struct {
	Name           string          `json:"nom"`
	FirstName      string          `json:"prenom"`
	Email          string          `json:"email"`
	Phone          string          `json:"tel"`
	SecondPhone    string          `json:"tel2"`
	Address        string          `json:"adresse"`
	Facebook       string          `json:"facebook"`
	LinkedIn       string          `json:"linkedin"`
	Logo           string          `json:"logo"`
	CV             string          `json:"cv"`
	Biography      string          `json:"biographie"`
	Experiences    []Experience    `json:"experiences"`
	Certifications []Certification `json:"certificats"`
	Diplomas       []Diploma       `json:"diplomes"`
	ID             int             `json:"id"`
}
