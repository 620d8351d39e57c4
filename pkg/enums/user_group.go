package enums

import "fmt"

// UserGroup is the authorization tier of an account.
type UserGroup string

const (
	UserGroupUser      UserGroup = "user"
	UserGroupModerator UserGroup = "moderator"
	UserGroupAdmin     UserGroup = "admin"
)

var validUserGroups = []UserGroup{
	UserGroupUser,
	UserGroupModerator,
	UserGroupAdmin,
}

// String implements fmt.Stringer.
func (u UserGroup) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserGroup.
func (u UserGroup) IsValid() bool {
	for _, candidate := range validUserGroups {
		if candidate == u {
			return true
		}
	}
	return false
}

// AtLeast reports whether the group grants everything min does.
func (u UserGroup) AtLeast(min UserGroup) bool {
	return groupRank(u) >= groupRank(min)
}

func groupRank(u UserGroup) int {
	switch u {
	case UserGroupAdmin:
		return 3
	case UserGroupModerator:
		return 2
	case UserGroupUser:
		return 1
	default:
		return 0
	}
}

// ParseUserGroup converts raw input into a UserGroup.
func ParseUserGroup(value string) (UserGroup, error) {
	for _, candidate := range validUserGroups {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user group %q", value)
}
