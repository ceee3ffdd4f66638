// Package access centralizes capability evaluation for hub resources.
// Every operation is a pure function of principal and resource attributes:
// no storage access, no side effects, safe under concurrent use. Callers
// resolve the resource first (not-found before forbidden) and map a false
// capability to HTTP 403.
package access

// Category carries the attributes the evaluator needs from a ticket
// category row.
type Category struct {
	ID             int64
	RequiredRoleID *string
	IsRestricted   bool
}

// Ticket carries the attributes the evaluator needs from a ticket row.
type Ticket struct {
	ID         int64
	OwnerID    string
	AssignedTo *string
	ClaimedBy  *string
}

// Form carries the role gates of an application form.
type Form struct {
	ID              int64
	AdminRoleID     *string
	ModeratorRoleID *string
	ViewerRoleID    *string
}

// Department carries the roster gate of a department.
type Department struct {
	ID           int64
	RosterViewID string
}

// CategoryAccess is the capability set a principal holds on a category.
type CategoryAccess struct {
	CanCreateTicket  bool
	HasSupportAccess bool
}

// TicketAccess is the capability set a principal holds on a ticket.
type TicketAccess struct {
	CanView                bool
	CanReply               bool
	CanClose               bool
	CanChangeStatusForward bool
	CanClaim               bool
	IsTreatedAsStaff       bool
}

// ApplicationAccess is the capability set a principal holds on a form.
type ApplicationAccess struct {
	CanSubmit     bool
	CanReview     bool
	CanAdminister bool
}

// CanManageSystem gates system-level CRUD (categories, departments,
// self-assignable roles, branding) and overrides every other check.
func CanManageSystem(p Principal) bool {
	return p.IsSystemAdmin
}

// ForCategory evaluates ticket-creation and support access on a category.
// A nil category (ticket whose category was deleted) grants support access
// to admins only and allows nobody to create into it.
func ForCategory(p Principal, cat *Category) CategoryAccess {
	if p.IsSystemAdmin {
		return CategoryAccess{CanCreateTicket: cat != nil, HasSupportAccess: true}
	}
	if cat == nil {
		return CategoryAccess{}
	}
	// Support access is strictly role-gated: a category with no required
	// role grants no support access to non-admins. IsRestricted only
	// governs creation.
	support := p.Roles.HasPtr(cat.RequiredRoleID)
	create := support
	if !cat.IsRestricted {
		create = true
	}
	return CategoryAccess{CanCreateTicket: create, HasSupportAccess: support}
}

// ForTicket evaluates the full ticket capability set. isParticipant is
// supplied by the caller from the ticket's participant list; the owner is
// never stored as a participant.
func ForTicket(p Principal, t Ticket, cat *Category, isParticipant bool) TicketAccess {
	support := ForCategory(p, cat).HasSupportAccess
	owner := t.OwnerID == p.ID
	assignedOrClaimed := ptrEquals(t.AssignedTo, p.ID) || ptrEquals(t.ClaimedBy, p.ID)

	staff := support || assignedOrClaimed || p.IsSystemAdmin
	view := owner || isParticipant || staff

	return TicketAccess{
		CanView:  view,
		CanReply: view,
		// Close is deliberately easier than any other transition: owners
		// may close their own ticket but cannot reopen or otherwise move it.
		CanClose:               owner || staff,
		CanChangeStatusForward: staff,
		// Being assigned or claimed does not itself grant claim rights.
		CanClaim:         support || p.IsSystemAdmin,
		IsTreatedAsStaff: staff,
	}
}

// CanManageParticipants gates adding and removing ticket participants.
func CanManageParticipants(p Principal, cat *Category) bool {
	return p.IsSystemAdmin || ForCategory(p, cat).HasSupportAccess
}

// CanTransferTicket gates moving a ticket to another category. The gate is
// the broader staff-or-admin check used elsewhere: holding support access
// to any category qualifies, with no check against the source or target
// category beyond the target existing. isStaffAnywhere is supplied by the
// caller from category role membership.
func CanTransferTicket(p Principal, isStaffAnywhere bool) bool {
	return p.IsSystemAdmin || isStaffAnywhere
}

// ForApplication evaluates submit/review/administer rights on a form.
// Form activity and the single-pending-submission rule are enforced by the
// applications service, not here.
func ForApplication(p Principal, form Form) ApplicationAccess {
	admin := p.IsSystemAdmin || p.Roles.HasPtr(form.AdminRoleID)
	review := admin || p.Roles.HasPtr(form.ModeratorRoleID)
	submit := review || p.Roles.HasPtr(form.ViewerRoleID)
	return ApplicationAccess{
		CanSubmit:     submit,
		CanReview:     review,
		CanAdminister: admin,
	}
}

// ForDepartment reports whether the principal may view and mutate the
// department roster. There is no view-only grant: one role gates both.
func ForDepartment(p Principal, dept Department) bool {
	return p.IsSystemAdmin || p.Roles.Has(dept.RosterViewID)
}

func ptrEquals(v *string, id string) bool {
	return v != nil && *v == id
}
