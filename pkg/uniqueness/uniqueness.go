// Package uniqueness checks tenant-wide uniqueness of codes, names and
// association keys before a write.
//
// The check and the following write are separate round trips. Two concurrent
// writers can both pass the check.
package uniqueness

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type Field struct {
	Column string
	Value  interface{}
}

// Rule names the value that must be unique among live rows of Table owned by
// CompanyID. ExcludeID skips the row being updated.
type Rule struct {
	Table     string
	Label     string
	Fields    []Field
	CompanyID uuid.UUID
	ExcludeID *uuid.UUID
	// Message overrides the default conflict text.
	Message string
}

func Code(table, label, code string, companyID uuid.UUID) Rule {
	return Rule{Table: table, Label: label, Fields: []Field{{"code", code}}, CompanyID: companyID}
}

func Name(table, label, name string, companyID uuid.UUID) Rule {
	return Rule{Table: table, Label: label, Fields: []Field{{"name", name}}, CompanyID: companyID}
}

func (r Rule) Excluding(id uuid.UUID) Rule {
	r.ExcludeID = &id
	return r
}

func (r Rule) conflictMessage() string {
	if r.Message != "" {
		return r.Message
	}
	values := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		values = append(values, fmt.Sprint(f.Value))
	}
	return fmt.Sprintf("%s '%s' already exists", r.Label, strings.Join(values, "/"))
}

type Enforcer struct {
	store store.Store
}

func NewEnforcer(s store.Store) *Enforcer {
	return &Enforcer{store: s}
}

// Check reports whether no other live row already holds the rule's value.
func (e *Enforcer) Check(ctx context.Context, scope tenant.Scope, rule Rule) (bool, error) {
	if len(rule.Fields) == 0 {
		return false, apperr.Validation("uniqueness rule for %s has no fields", rule.Table)
	}
	q := store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("company_id", rule.CompanyID)},
	}
	for _, f := range rule.Fields {
		q.Where = append(q.Where, store.Eq(f.Column, f.Value))
	}
	if rule.ExcludeID != nil {
		q.Where = append(q.Where, store.Ne("id", *rule.ExcludeID))
	}

	taken, err := store.Exists(ctx, e.store, rule.Table, q)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Ensure fails with Conflict naming the value when Check does not pass.
func (e *Enforcer) Ensure(ctx context.Context, scope tenant.Scope, rules ...Rule) error {
	for _, rule := range rules {
		ok, err := e.Check(ctx, scope, rule)
		if err != nil {
			return err
		}
		if !ok {
			metrics.ConflictsTotal.WithLabelValues("uniqueness", rule.Table).Inc()
			return apperr.Conflict("%s", rule.conflictMessage())
		}
	}
	return nil
}
