package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func admin() Principal {
	return Principal{ID: "100", IsSystemAdmin: true, Roles: RoleSet{}}
}

func member(id string, roles ...string) Principal {
	return Principal{ID: id, Roles: NewRoleSet(roles...)}
}

func TestAdminHoldsMaximalCapabilities(t *testing.T) {
	p := admin()
	cat := &Category{ID: 1, IsRestricted: true, RequiredRoleID: strptr("555")}

	ca := ForCategory(p, cat)
	require.True(t, ca.CanCreateTicket)
	require.True(t, ca.HasSupportAccess)

	ta := ForTicket(p, Ticket{ID: 1, OwnerID: "someone-else"}, cat, false)
	require.True(t, ta.CanView)
	require.True(t, ta.CanReply)
	require.True(t, ta.CanClose)
	require.True(t, ta.CanChangeStatusForward)
	require.True(t, ta.CanClaim)
	require.True(t, ta.IsTreatedAsStaff)

	aa := ForApplication(p, Form{ID: 1, AdminRoleID: strptr("1"), ModeratorRoleID: strptr("2"), ViewerRoleID: strptr("3")})
	require.True(t, aa.CanSubmit)
	require.True(t, aa.CanReview)
	require.True(t, aa.CanAdminister)

	require.True(t, ForDepartment(p, Department{ID: 1, RosterViewID: "999"}))
	require.True(t, CanManageSystem(p))
	require.True(t, CanManageParticipants(p, cat))
	require.True(t, CanTransferTicket(p, false))
}

func TestOpenCategoryCreatesForAllButGrantsNoSupport(t *testing.T) {
	cat := &Category{ID: 2, IsRestricted: false, RequiredRoleID: nil}
	p := member("200")

	ca := ForCategory(p, cat)
	require.True(t, ca.CanCreateTicket)
	require.False(t, ca.HasSupportAccess)
}

func TestRestrictedCategoryRequiresRole(t *testing.T) {
	cat := &Category{ID: 3, IsRestricted: true, RequiredRoleID: strptr("R")}

	ca := ForCategory(member("200", "R"), cat)
	require.True(t, ca.CanCreateTicket)
	require.True(t, ca.HasSupportAccess)

	ca = ForCategory(member("200", "other"), cat)
	require.False(t, ca.CanCreateTicket)
	require.False(t, ca.HasSupportAccess)

	ca = ForCategory(member("200"), cat)
	require.False(t, ca.CanCreateTicket)
}

func TestRestrictedCategoryWithoutRoleLocksCreation(t *testing.T) {
	// Restricted but no required role set: nobody but admins can create.
	cat := &Category{ID: 4, IsRestricted: true, RequiredRoleID: nil}
	require.False(t, ForCategory(member("200", "anything"), cat).CanCreateTicket)
	require.True(t, ForCategory(admin(), cat).CanCreateTicket)
}

func TestSupportAccessIndependentOfRestrictedFlag(t *testing.T) {
	// An open category with a required role still gates support on it.
	cat := &Category{ID: 5, IsRestricted: false, RequiredRoleID: strptr("R")}
	require.True(t, ForCategory(member("200", "R"), cat).HasSupportAccess)
	require.False(t, ForCategory(member("200"), cat).HasSupportAccess)
	require.True(t, ForCategory(member("200"), cat).CanCreateTicket)
}

func TestOwnerCanCloseButNotReopen(t *testing.T) {
	cat := &Category{ID: 6, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 10, OwnerID: "owner"}

	ta := ForTicket(member("owner"), ticket, cat, false)
	require.True(t, ta.CanView)
	require.True(t, ta.CanReply)
	require.True(t, ta.CanClose)
	require.False(t, ta.CanChangeStatusForward)
	require.False(t, ta.CanClaim)
	require.False(t, ta.IsTreatedAsStaff)
}

func TestSupportMemberCapabilities(t *testing.T) {
	cat := &Category{ID: 7, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 11, OwnerID: "owner"}

	ta := ForTicket(member("staff", "R"), ticket, cat, false)
	require.True(t, ta.CanView)
	require.True(t, ta.CanChangeStatusForward)
	require.True(t, ta.CanClaim)
	require.True(t, ta.IsTreatedAsStaff)
}

func TestParticipantCanViewAndReplyOnly(t *testing.T) {
	cat := &Category{ID: 8, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 12, OwnerID: "owner"}

	ta := ForTicket(member("guest"), ticket, cat, true)
	require.True(t, ta.CanView)
	require.True(t, ta.CanReply)
	require.False(t, ta.CanClose)
	require.False(t, ta.CanChangeStatusForward)
	require.False(t, ta.CanClaim)
	require.False(t, ta.IsTreatedAsStaff)
}

func TestAssignedHandlerIsStaffButCannotClaim(t *testing.T) {
	cat := &Category{ID: 9, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 13, OwnerID: "owner", AssignedTo: strptr("handler")}

	ta := ForTicket(member("handler"), ticket, cat, false)
	require.True(t, ta.CanView)
	require.True(t, ta.CanClose)
	require.True(t, ta.CanChangeStatusForward)
	require.True(t, ta.IsTreatedAsStaff)
	// Assignment alone grants no claim rights.
	require.False(t, ta.CanClaim)
}

func TestClaimedHandlerTreatedAsStaff(t *testing.T) {
	cat := &Category{ID: 10, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 14, OwnerID: "owner", ClaimedBy: strptr("handler")}

	ta := ForTicket(member("handler"), ticket, cat, false)
	require.True(t, ta.IsTreatedAsStaff)
	require.False(t, ta.CanClaim)
}

func TestStrangerHasNoTicketAccess(t *testing.T) {
	cat := &Category{ID: 11, RequiredRoleID: strptr("R")}
	ticket := Ticket{ID: 15, OwnerID: "owner"}

	ta := ForTicket(member("stranger"), ticket, cat, false)
	require.False(t, ta.CanView)
	require.False(t, ta.CanReply)
	require.False(t, ta.CanClose)
	require.False(t, ta.CanChangeStatusForward)
	require.False(t, ta.CanClaim)
}

func TestDeletedCategoryTicket(t *testing.T) {
	// Category FK was nulled out: owner keeps view/close, nobody gains
	// support access except admins.
	ticket := Ticket{ID: 16, OwnerID: "owner"}

	ta := ForTicket(member("owner", "R"), ticket, nil, false)
	require.True(t, ta.CanView)
	require.True(t, ta.CanClose)
	require.False(t, ta.CanChangeStatusForward)

	require.True(t, ForTicket(admin(), ticket, nil, false).CanChangeStatusForward)
}

func TestApplicationRoleLadder(t *testing.T) {
	form := Form{ID: 1, AdminRoleID: strptr("A"), ModeratorRoleID: strptr("M"), ViewerRoleID: strptr("V")}

	aa := ForApplication(member("u", "V"), form)
	require.True(t, aa.CanSubmit)
	require.False(t, aa.CanReview)
	require.False(t, aa.CanAdminister)

	aa = ForApplication(member("u", "M"), form)
	require.True(t, aa.CanSubmit)
	require.True(t, aa.CanReview)
	require.False(t, aa.CanAdminister)

	aa = ForApplication(member("u", "A"), form)
	require.True(t, aa.CanSubmit)
	require.True(t, aa.CanReview)
	require.True(t, aa.CanAdminister)

	aa = ForApplication(member("u"), form)
	require.False(t, aa.CanSubmit)
	require.False(t, aa.CanReview)
	require.False(t, aa.CanAdminister)
}

func TestApplicationNilGates(t *testing.T) {
	// A form with no viewer role only accepts reviewers and admins.
	form := Form{ID: 2, ModeratorRoleID: strptr("M")}
	require.False(t, ForApplication(member("u"), form).CanSubmit)
	require.True(t, ForApplication(member("u", "M"), form).CanSubmit)
}

func TestDepartmentAccessAllOrNothing(t *testing.T) {
	dept := Department{ID: 1, RosterViewID: "ROSTER"}
	require.True(t, ForDepartment(member("u", "ROSTER"), dept))
	require.False(t, ForDepartment(member("u", "other"), dept))
	require.False(t, ForDepartment(member("u"), dept))
}

func TestCanManageSystemIgnoresRoles(t *testing.T) {
	require.False(t, CanManageSystem(member("u", "R1", "R2")))
	require.True(t, CanManageSystem(Principal{ID: "a", IsSystemAdmin: true}))
}
