// Package tenant resolves which company's rows an actor may read and write.
//
// A Scope is always passed explicitly to core operations. The zero Scope has
// no company and no elevated role, so it matches nothing.
package tenant

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prodflow/prodflow/pkg/apperr"
)

type Role string

const (
	RoleSystemAdmin  Role = "system_admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleUser         Role = "user"
)

// Actor is the authenticated caller as resolved by the request layer.
type Actor struct {
	ID        string
	CompanyID uuid.UUID
	Roles     []Role
}

func (a Actor) Has(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Scope struct {
	actor Actor
}

func For(actor Actor) Scope {
	return Scope{actor: actor}
}

func (s Scope) Actor() Actor {
	return s.actor
}

func (s Scope) ActorID() string {
	return s.actor.ID
}

func (s Scope) CompanyID() uuid.UUID {
	return s.actor.CompanyID
}

// Unrestricted reports whether the scope drops the company filter entirely.
func (s Scope) Unrestricted() bool {
	return s.actor.Has(RoleSystemAdmin)
}

func (s Scope) IsCompanyAdmin() bool {
	return s.Unrestricted() || s.actor.Has(RoleCompanyAdmin)
}

// Matches reports whether a row owned by companyID is visible in this scope.
func (s Scope) Matches(companyID uuid.UUID) bool {
	return s.Unrestricted() || (s.actor.CompanyID != uuid.Nil && companyID == s.actor.CompanyID)
}

// Column returns the company column qualified by table when one is given.
func Column(table string) string {
	if table == "" {
		return "company_id"
	}
	return table + ".company_id"
}

// Gorm returns a gorm scope applying the company predicate to queries on
// table. System admins get the query back unchanged.
func (s Scope) Gorm(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s.Unrestricted() {
			return db
		}
		return db.Where(Column(table)+" = ?", s.actor.CompanyID)
	}
}

// AuthorizeWrite fails with Forbidden when a row owned by companyID may not be
// written by this scope.
func (s Scope) AuthorizeWrite(companyID uuid.UUID) error {
	if s.Matches(companyID) {
		return nil
	}
	return apperr.Forbidden("company %s is outside the caller's scope", companyID)
}

// CompanyForCreate resolves the owning company of a new row. Only system
// admins may create rows for another company, and they must name it.
func (s Scope) CompanyForCreate(requested *uuid.UUID) (uuid.UUID, error) {
	if requested == nil || *requested == uuid.Nil {
		if s.actor.CompanyID == uuid.Nil {
			return uuid.Nil, apperr.Validation("company_id is required")
		}
		return s.actor.CompanyID, nil
	}
	if err := s.AuthorizeWrite(*requested); err != nil {
		return uuid.Nil, err
	}
	return *requested, nil
}

func (s Scope) RequireCompanyAdmin() error {
	if s.IsCompanyAdmin() {
		return nil
	}
	return apperr.Forbidden("company administrator role required")
}

// System returns an unrestricted scope for background processes that act on
// behalf of no particular user.
func System(name string) Scope {
	return Scope{actor: Actor{ID: name, Roles: []Role{RoleSystemAdmin}}}
}
