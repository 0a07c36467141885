// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

// Affiliation indicates a users long lived relationship with the room.
type Affiliation uint8

// A list of room affiliations.
const (
	AffiliationNone Affiliation = iota

	// Support for the owner affiliation is required.
	AffiliationOwner

	// Support for these affiliations is recommended, but optional.
	AffiliationAdmin
	AffiliationMember
	AffiliationOutcast
)

var affiliationNames = [...]string{
	AffiliationNone:    "none",
	AffiliationOwner:   "owner",
	AffiliationAdmin:   "admin",
	AffiliationMember:  "member",
	AffiliationOutcast: "outcast",
}

func (a Affiliation) String() string {
	if int(a) < len(affiliationNames) {
		return affiliationNames[a]
	}
	return "none"
}

// ParseAffiliation returns the affiliation with the provided name.
// Unknown names are reported as AffiliationNone and false.
func ParseAffiliation(s string) (Affiliation, bool) {
	for i, name := range affiliationNames {
		if name == s {
			return Affiliation(i), true
		}
	}
	return AffiliationNone, false
}

// Role indicates a users role in the room for the duration of a visit.
type Role uint8

// A list of user roles.
const (
	RoleNone Role = iota

	// Support for these roles is required.
	RoleModerator
	RoleParticipant

	// Support for these roles is recommended, but optional.
	RoleVisitor
)

var roleNames = [...]string{
	RoleNone:        "none",
	RoleModerator:   "moderator",
	RoleParticipant: "participant",
	RoleVisitor:     "visitor",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "none"
}

// ParseRole returns the role with the provided name.
// Unknown names are reported as RoleNone and false.
func ParseRole(s string) (Role, bool) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), true
		}
	}
	return RoleNone, false
}

// Privileges is a bit mask indicating the various privileges assigned to a room
// user.
type Privileges uint16

// A list of possible privileges.
const (
	PrivilegePresent Privileges = 1 << iota
	PrivilegeReceiveMessages
	PrivilegeReceivePresence
	PrivilegeBroadcastPresence
	PrivilegeChangeAvailability
	PrivilegeChangeNick
	PrivilegePrivateMessage
	PrivilegeSendInvites
	PrivilegeSendMessages
	PrivilegeModifySubject
	PrivilegeKick
	PrivilegeGrantVoice
	PrivilegeRevokeVoice

	// Common default privileges for each role.
	// These are just common defaults provided as a convenience, it is not
	// guaranteed that a user of a given role has this set of privileges.
	PrivilegesVisitor     = PrivilegePresent | PrivilegeReceiveMessages | PrivilegeReceivePresence | PrivilegeBroadcastPresence | PrivilegeChangeAvailability | PrivilegeChangeNick | PrivilegePrivateMessage | PrivilegeSendInvites
	PrivilegesParticipant = PrivilegesVisitor | PrivilegeSendMessages | PrivilegeModifySubject
	PrivilegesModerator   = PrivilegesParticipant | PrivilegeKick | PrivilegeGrantVoice | PrivilegeRevokeVoice
)

// DefaultPrivileges returns the privileges commonly granted to a role.
func DefaultPrivileges(r Role) Privileges {
	switch r {
	case RoleVisitor:
		return PrivilegesVisitor
	case RoleParticipant:
		return PrivilegesParticipant
	case RoleModerator:
		return PrivilegesModerator
	}
	return 0
}
