// Package store defines the persistence primitives used by the core services.
//
// Every read and write takes a tenant.Scope through Query. The zero Scope
// matches no rows.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/tenant"
)

var ErrNotFound = errors.New("record not found")

type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpIn      Op = "IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

type Cond struct {
	Column string
	Op     Op
	Value  interface{}
}

func Eq(column string, value interface{}) Cond {
	return Cond{Column: column, Op: OpEq, Value: value}
}

func Ne(column string, value interface{}) Cond {
	return Cond{Column: column, Op: OpNe, Value: value}
}

func In(column string, values interface{}) Cond {
	return Cond{Column: column, Op: OpIn, Value: values}
}

func IsNull(column string) Cond {
	return Cond{Column: column, Op: OpIsNull}
}

func NotNull(column string) Cond {
	return Cond{Column: column, Op: OpNotNull}
}

// Query selects rows of one table. Table may be left empty when the
// destination type names its own table.
type Query struct {
	Table    string
	Select   string
	Where    []Cond
	Scope    tenant.Scope
	LiveOnly bool
	Order    string
	Limit    int
	Offset   int
	Preload  []string
}

func ByID(scope tenant.Scope, id uuid.UUID) Query {
	return Query{Scope: scope, Where: []Cond{Eq("id", id)}}
}

// Store is the four primitive operations of the row store plus Count.
// FindOne returns ErrNotFound when no row matches. Its dest must not carry a
// primary key; a populated key is matched as an extra condition. Update
// accepts a nil model when q.Table names the table.
type Store interface {
	Find(ctx context.Context, dest interface{}, q Query) error
	FindOne(ctx context.Context, dest interface{}, q Query) error
	Count(ctx context.Context, table string, q Query) (int64, error)
	Insert(ctx context.Context, record interface{}) error
	Update(ctx context.Context, model interface{}, q Query, patch map[string]interface{}) (int64, error)
}

// Unit describes a multi-step write for logging and error reporting.
type Unit struct {
	Name      string
	Entity    string
	ID        uuid.UUID
	CompanyID uuid.UUID
}

type Step struct {
	Name string
	Do   func(ctx context.Context, s Store) error
}

// UnitOfWork runs steps in order. A failure in the first step is returned as
// is. A failure in a later step is reported as apperr.KindPartial unless the
// implementation runs the unit atomically.
type UnitOfWork interface {
	Run(ctx context.Context, unit Unit, steps ...Step) error
}

type Database interface {
	Store
	UnitOfWork
}

// Row is implemented by every model embedding model.Base.
type Row interface {
	Header() *model.Base
}

// Lookup converts ErrNotFound into a NotFound naming entity and wraps any
// other failure as a store error.
func Lookup(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(entity)
	}
	return apperr.Store(err)
}

// Get loads the row with id visible in scope, live or not. Internal callers
// use it to decide how a soft-deleted row is reported.
func Get(ctx context.Context, s Store, scope tenant.Scope, dest Row, id uuid.UUID, entity string) error {
	dest.Header().ID = uuid.Nil
	return Lookup(s.FindOne(ctx, dest, ByID(scope, id)), entity)
}

// ReadOptions controls by-id reads served to callers.
type ReadOptions struct {
	IncludeInactive bool
}

func mergeRead(opts []ReadOptions) ReadOptions {
	var out ReadOptions
	for _, o := range opts {
		out.IncludeInactive = out.IncludeInactive || o.IncludeInactive
	}
	return out
}

// ReadQuery is ByID for caller-facing reads. Soft-deleted rows match only
// when one of opts includes them.
func ReadQuery(scope tenant.Scope, id uuid.UUID, opts ...ReadOptions) Query {
	q := ByID(scope, id)
	q.LiveOnly = !mergeRead(opts).IncludeInactive
	return q
}

// Read loads the row with id for a caller. A soft-deleted row is not found
// unless opts include inactive rows.
func Read(ctx context.Context, s Store, scope tenant.Scope, dest Row, id uuid.UUID, entity string, opts ...ReadOptions) error {
	dest.Header().ID = uuid.Nil
	return Lookup(s.FindOne(ctx, dest, ReadQuery(scope, id, opts...)), entity)
}

// LoadParent loads a row that a new child row will reference. The parent must
// be visible in scope, live, and owned by companyID.
func LoadParent(ctx context.Context, s Store, scope tenant.Scope, dest Row, id uuid.UUID, entity string, companyID uuid.UUID) error {
	if err := Get(ctx, s, scope, dest, id, entity); err != nil {
		return err
	}
	h := dest.Header()
	if !h.Status {
		return apperr.Precondition("%s is inactive", entity)
	}
	if h.CompanyID != companyID {
		return apperr.Forbidden("%s belongs to another company", entity)
	}
	return nil
}

// Exists reports whether any row matches q.
func Exists(ctx context.Context, s Store, table string, q Query) (bool, error) {
	q.Limit = 1
	n, err := s.Count(ctx, table, q)
	if err != nil {
		return false, apperr.Store(err)
	}
	return n > 0, nil
}

// LoadTarget loads a live row that the caller is about to change. Rows that
// are soft-deleted are reported as not found.
func LoadTarget(ctx context.Context, s Store, scope tenant.Scope, dest Row, id uuid.UUID, entity string) error {
	if err := Get(ctx, s, scope, dest, id, entity); err != nil {
		return err
	}
	h := dest.Header()
	if !h.Status {
		return apperr.NotFound(entity)
	}
	return scope.AuthorizeWrite(h.CompanyID)
}

// LoadOwner loads the parent of a new child row. The child inherits the
// parent's company, so only liveness and write access are checked.
func LoadOwner(ctx context.Context, s Store, scope tenant.Scope, dest Row, id uuid.UUID, entity string) error {
	if err := Get(ctx, s, scope, dest, id, entity); err != nil {
		return err
	}
	h := dest.Header()
	if !h.Status {
		return apperr.Precondition("%s is inactive", entity)
	}
	return scope.AuthorizeWrite(h.CompanyID)
}

// ListOptions is the paging and visibility shared by list operations.
type ListOptions struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

const MaxPageSize = 500

// Query builds a list query. Soft-deleted rows are excluded unless asked for.
func (o ListOptions) Query(scope tenant.Scope, order string, conds ...Cond) Query {
	limit := o.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Query{
		Scope:    scope,
		Where:    conds,
		LiveOnly: !o.IncludeInactive,
		Order:    order,
		Limit:    limit,
		Offset:   o.Offset,
	}
}
