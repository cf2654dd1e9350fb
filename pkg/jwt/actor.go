package jwt

import (
	"fmt"
	"strconv"
	"strings"
)

// RoleType is the kind of external identity a token belongs to
type RoleType string

const (
	RoleUser  RoleType = "user"
	RoleAgent RoleType = "agent"
)

// rolePrefixes are fixed-width so a chat user id can be split without a separator
var rolePrefixes = map[RoleType]string{
	RoleUser:  "u___",
	RoleAgent: "ag__",
}

// Actor is an external numeric identity mapped onto a chat user id
type Actor struct {
	Id   int64
	Role RoleType
}

// ToUserId renders the chat user id, e.g. Actor{42, RoleUser} is "u___42"
func (a *Actor) ToUserId() (string, error) {
	prefix, ok := rolePrefixes[a.Role]
	if !ok {
		return "", fmt.Errorf("no user id prefix for role %q", a.Role)
	}
	return prefix + strconv.FormatInt(a.Id, 10), nil
}

// FromUserId parses a chat user id produced by ToUserId
func (a *Actor) FromUserId(userId string) error {
	for role, prefix := range rolePrefixes {
		rest, ok := strings.CutPrefix(userId, prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return fmt.Errorf("user id %q: %w", userId, err)
		}
		a.Id, a.Role = id, role
		return nil
	}
	return fmt.Errorf("user id %q has no actor prefix", userId)
}
