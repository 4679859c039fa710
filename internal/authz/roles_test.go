package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivileged(t *testing.T) {
	assert.True(t, IsPrivileged(RoleDirector))
	assert.True(t, IsPrivileged(RoleManager))
	assert.False(t, IsPrivileged(RoleMainAdmin))
	assert.False(t, IsPrivileged(RoleAdmin))
	assert.False(t, IsPrivileged(Role("guest")))
}

func TestCanManageRoles(t *testing.T) {
	for _, r := range AllRoles() {
		assert.Equal(t, r == RoleDirector, CanManageRoles(r), string(r))
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("main_admin")
	assert.True(t, ok)
	assert.Equal(t, RoleMainAdmin, r)

	_, ok = ParseRole("root")
	assert.False(t, ok)
	assert.Equal(t, "root", Role("root").DisplayName())
}
