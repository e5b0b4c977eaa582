package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserPermissions(t *testing.T) {
	r := NewResolver([]int{1})

	assert.Equal(t, RoleUser, r.RoleOf(2))
	assert.NoError(t, r.CheckPermission(2, PermissionFundEscrow))
	assert.NoError(t, r.CheckPermission(2, PermissionApproveMilestone))

	err := r.CheckPermission(2, PermissionReplayOutbox)
	var denied *PermissionDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, PermissionReplayOutbox, denied.Permission)
}

func TestAdminPermissions(t *testing.T) {
	r := NewResolver([]int{1})
	assert.Equal(t, RoleAdmin, r.RoleOf(1))
	assert.True(t, r.HasPermission(1, PermissionReplayOutbox))
}

func TestNilResolverDefaultsToUser(t *testing.T) {
	var r *Resolver
	assert.Equal(t, RoleUser, r.RoleOf(1))
	assert.False(t, r.HasPermission(1, PermissionReplayOutbox))
}
