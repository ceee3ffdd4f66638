package access

import "encoding/json"

// Principal describes the authenticated actor for capability evaluation.
// It is decoded once at the authentication boundary and carried through
// request context; handlers never re-parse role data downstream.
type Principal struct {
	ID            string
	IsSystemAdmin bool
	Roles         RoleSet
	IsHubBanned   bool
}

// RoleSet holds the Discord role snowflakes a principal currently carries.
// Membership is order-insensitive and duplicates collapse.
type RoleSet map[string]struct{}

// NewRoleSet builds a RoleSet from role IDs, dropping empty entries.
func NewRoleSet(ids ...string) RoleSet {
	set := make(RoleSet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// DecodeRoleSet parses a stored JSON array of role IDs. Malformed input
// yields an empty set: an undecodable role list must never grant access.
func DecodeRoleSet(raw []byte) RoleSet {
	if len(raw) == 0 {
		return RoleSet{}
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return RoleSet{}
	}
	return NewRoleSet(ids...)
}

// Has reports whether the set contains the given role ID.
func (s RoleSet) Has(roleID string) bool {
	if s == nil || roleID == "" {
		return false
	}
	_, ok := s[roleID]
	return ok
}

// HasPtr reports membership for a nullable role ID. A nil pointer never
// matches.
func (s RoleSet) HasPtr(roleID *string) bool {
	if roleID == nil {
		return false
	}
	return s.Has(*roleID)
}

// IDs returns the member role IDs in unspecified order.
func (s RoleSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// MarshalJSON encodes the set as a JSON array of role IDs.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes a JSON array of role IDs, collapsing duplicates.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewRoleSet(ids...)
	return nil
}
