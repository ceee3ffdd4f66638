package categories

import (
	"time"

	"github.com/haven-community/haven/internal/access"
)

// Category classifies tickets and carries the support role gate.
type Category struct {
	ID             int64
	Name           string
	Description    string
	RequiredRoleID *string
	IsRestricted   bool
	WebhookURL     *string
	Position       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Access converts the row into the evaluator's category view.
func (c *Category) Access() *access.Category {
	if c == nil {
		return nil
	}
	return &access.Category{ID: c.ID, RequiredRoleID: c.RequiredRoleID, IsRestricted: c.IsRestricted}
}

// CreateInput carries the fields for creating or updating a category.
type CreateInput struct {
	Name           string
	Description    string
	RequiredRoleID *string
	IsRestricted   bool
	WebhookURL     *string
	Position       int
}
