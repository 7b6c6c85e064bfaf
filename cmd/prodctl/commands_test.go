package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/tenant"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommandIssuesValidToken(t *testing.T) {
	t.Setenv("PRODFLOW_AUTH_JWT_SECRET", "cli-secret")
	company := uuid.New()

	out, err := run(t, "token", "--sub", "planner", "--company", company.String(), "--role", "company_admin")
	require.NoError(t, err)

	claims, err := auth.NewTokenManager([]byte("cli-secret"), time.Hour, "").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, "planner", actor.ID)
	assert.Equal(t, company, actor.CompanyID)
	assert.True(t, actor.Has(tenant.RoleCompanyAdmin))
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	t.Setenv("PRODFLOW_AUTH_JWT_SECRET", "cli-secret")

	_, err := run(t, "token", "--sub", "planner")
	assert.ErrorContains(t, err, "--company is required")

	_, err = run(t, "token", "--sub", "planner", "--company", uuid.NewString(), "--role", "owner")
	assert.ErrorContains(t, err, `unknown role "owner"`)
}

func TestKindNamesListsRegistry(t *testing.T) {
	names := kindNames()
	assert.Contains(t, names, "group")
	assert.Contains(t, names, "production_stage")
}
