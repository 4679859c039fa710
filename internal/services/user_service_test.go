package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories/memory"
)

func TestRegisterContact(t *testing.T) {
	svc := NewUserService(memory.NewGateway().Users, testLogger())
	ctx := context.Background()

	first, created, err := svc.RegisterContact(ctx, models.User{ExternalID: 42, FirstName: " Dana "})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, authz.RoleDirector, first.Role)
	assert.Equal(t, "Dana", first.FirstName)

	second, created, err := svc.RegisterContact(ctx, models.User{ExternalID: 43})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, authz.RoleAdmin, second.Role)

	again, created, err := svc.RegisterContact(ctx, models.User{ExternalID: 42})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = svc.RegisterContact(ctx, models.User{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChangeRole(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	svc := NewUserService(w.gw.Users, testLogger())

	updated, err := svc.ChangeRole(ctx, w.director.ID, w.assignee.ID, authz.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleManager, updated.Role)

	_, err = svc.ChangeRole(ctx, w.manager.ID, w.outsider.ID, authz.RoleDirector)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ChangeRole(ctx, w.director.ID, w.assignee.ID, authz.Role("owner"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ChangeRole(ctx, w.director.ID, w.director.ID, authz.RoleAdmin)
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := svc.GetByID(ctx, w.outsider.ID)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleMainAdmin, stored.Role)
}
