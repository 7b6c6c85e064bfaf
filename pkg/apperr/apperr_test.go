package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("name is required"), http.StatusBadRequest},
		{Forbidden("company mismatch"), http.StatusForbidden},
		{NotFound("production stage"), http.StatusNotFound},
		{Conflict("code %q already exists", "RM-1"), http.StatusConflict},
		{Precondition("stage must be in progress"), http.StatusBadRequest},
		{InvalidState("production order", "completed", "pending"), http.StatusBadRequest},
		{Partial("create quality check", "update stage approval", errors.New("boom")), http.StatusInternalServerError},
		{Store(errors.New("connection reset")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("delete group: %w", Conflict("Cannot delete group: it is associated with users"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.Equal(t, "Cannot delete group: it is associated with users", Message(err))
}

func TestStoreKeepsExistingKind(t *testing.T) {
	nf := NotFound("recipe")
	assert.Same(t, nf, Store(nf).(*Error))
	assert.Nil(t, Store(nil))
	assert.Equal(t, KindStore, KindOf(Store(errors.New("x"))))
}

func TestInvalidStateCarriesStates(t *testing.T) {
	err := InvalidState("production stage", "completed", "in_progress")
	assert.Equal(t, "completed", err.From)
	assert.Equal(t, "in_progress", err.To)
	assert.Contains(t, err.Error(), "from completed to in_progress")
}

func TestPartialMessageNamesStep(t *testing.T) {
	err := Partial("delete recipe", "soft-delete recipe", errors.New("timeout"))
	assert.Contains(t, Message(err), `"soft-delete recipe"`)
	assert.Contains(t, Message(err), "timeout")
}

func TestPrefixKeepsKind(t *testing.T) {
	err := Prefix("details[2]: ", Precondition("raw material is inactive"))
	assert.Equal(t, KindPrecondition, KindOf(err))
	assert.Equal(t, "details[2]: raw material is inactive", Message(err))
}
