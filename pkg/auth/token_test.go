package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodflow/prodflow/pkg/tenant"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewTokenManager([]byte("secret"), time.Hour, "")
	company := uuid.New()

	token, err := m.Generate(tenant.Actor{ID: "alice", CompanyID: company, Roles: []tenant.Role{tenant.RoleCompanyAdmin}})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, "alice", actor.ID)
	assert.Equal(t, company, actor.CompanyID)
	assert.True(t, actor.Has(tenant.RoleCompanyAdmin))
}

func TestValidateRejectsOtherKey(t *testing.T) {
	token, err := NewTokenManager([]byte("one"), time.Hour, "").Generate(tenant.Actor{ID: "bob"})
	require.NoError(t, err)

	_, err = NewTokenManager([]byte("two"), time.Hour, "").Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewTokenManager([]byte("secret"), -time.Minute, "")
	token, err := m.Generate(tenant.Actor{ID: "bob"})
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestClaimsWithBadCompany(t *testing.T) {
	c := &ActorClaims{CompanyID: "not-a-uuid"}
	c.Subject = "x"
	_, err := c.Actor()
	assert.ErrorIs(t, err, ErrInvalidToken)
}
