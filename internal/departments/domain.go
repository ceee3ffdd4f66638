package departments

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haven-community/haven/internal/access"
)

// Classification distinguishes official departments from looser
// organizations. Both share the roster machinery.
type Classification string

const (
	ClassDepartment   Classification = "department"
	ClassOrganization Classification = "organization"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	return c == ClassDepartment || c == ClassOrganization
}

// Department is a rostered unit gated by a single Discord role.
type Department struct {
	ID               int64
	Name             string
	Classification   Classification
	RosterViewID     string
	DisableCallsigns bool
	WebhookURL       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Access converts the row into the evaluator's department view.
func (d Department) Access() access.Department {
	return access.Department{ID: d.ID, RosterViewID: d.RosterViewID}
}

// RosterEntry is one member of a department roster.
type RosterEntry struct {
	ID           int64
	DepartmentID int64
	UserID       string
	DisplayName  string
	Callsign     *string
	Rank         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TimeclockEntry is one shift. EndedAt is NULL while the member is
// clocked in; Minutes is computed on clock-out.
type TimeclockEntry struct {
	ID           int64
	DepartmentID int64
	UserID       string
	StartedAt    time.Time
	EndedAt      *time.Time
	Minutes      int
}

// MemberSummary aggregates a roster member's time over a window.
type MemberSummary struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Callsign     *string `json:"callsign,omitempty"`
	Rank         string `json:"rank"`
	TotalMinutes int    `json:"total_minutes"`
	ShiftCount   int    `json:"shift_count"`
	ClockedIn    bool   `json:"clocked_in"`
}

// DepartmentInput carries the fields for creating or updating a
// department.
type DepartmentInput struct {
	Name             string
	Classification   Classification
	RosterViewID     string
	DisableCallsigns bool
	WebhookURL       *string
}

// RosterInput carries the fields for adding or updating a roster entry.
type RosterInput struct {
	UserID      string
	DisplayName string
	Callsign    *string
	Rank        string
}

var titleCaser = cases.Title(language.English)

// NormalizeDisplayName title-cases a roster display name so mixed-case
// Discord handles render consistently.
func NormalizeDisplayName(name string) string {
	return titleCaser.String(name)
}
