// Package catalog manages the master data production runs on: organization
// groups and roles, products and customers, materials, warehouses and stock,
// recipes and specs.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/sequence"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type Service struct {
	db      store.Database
	unique  *uniqueness.Enforcer
	seq     *sequence.Sequencer
	deleter *softdelete.Coordinator
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(db store.Database, deleter *softdelete.Coordinator, logger *zap.Logger) *Service {
	return &Service{
		db:      db,
		unique:  uniqueness.NewEnforcer(db),
		seq:     sequence.New(db),
		deleter: deleter,
		logger:  logger,
		now:     time.Now,
	}
}

// adminKinds are managed by company administrators only.
var adminKinds = map[softdelete.Kind]bool{
	softdelete.KindGroup:       true,
	softdelete.KindRole:        true,
	softdelete.KindUserInGroup: true,
	softdelete.KindGroupInRole: true,
}

// Delete soft-deletes a catalog row of the given kind after its dependency
// checks pass.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, kind softdelete.Kind, id uuid.UUID) (*softdelete.Result, error) {
	if adminKinds[kind] {
		if err := scope.RequireCompanyAdmin(); err != nil {
			return nil, err
		}
	}
	return s.deleter.Delete(ctx, scope, kind, id)
}

func get[T any, P interface {
	*T
	store.Row
}](ctx context.Context, db store.Store, scope tenant.Scope, id uuid.UUID, entity string, opts []store.ReadOptions) (*T, error) {
	var row T
	if err := store.Read(ctx, db, scope, P(&row), id, entity, opts...); err != nil {
		return nil, err
	}
	return &row, nil
}

func list[T any](ctx context.Context, db store.Store, q store.Query) ([]T, error) {
	rows := []T{}
	if err := db.Find(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// update writes patch to the row with id, stamping the actor and time.
func (s *Service) update(ctx context.Context, scope tenant.Scope, m store.Row, id uuid.UUID, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	patch["updated_by"] = scope.ActorID()
	patch["updated_at"] = s.now()
	_, err := s.db.Update(ctx, m, store.ByID(scope, id), patch)
	return err
}

// required takes alternating field names and values.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apperr.Validation("%s is required", pairs[i])
		}
	}
	return nil
}

// setString puts a trimmed, non-empty value into patch under column.
func setString(patch map[string]interface{}, column string, v *string) error {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return apperr.Validation("%s must not be empty", column)
	}
	patch[column] = trimmed
	return nil
}

func setText(patch map[string]interface{}, column string, v *string) {
	if v != nil {
		patch[column] = *v
	}
}

// numberLines assigns sequence keys to the lines of a new parent in the order
// given. Explicit keys are kept; the others continue after the highest key
// seen so far.
func numberLines(explicit []*int) ([]int, error) {
	out := make([]int, len(explicit))
	used := make(map[int]bool, len(explicit))
	next := 0
	for i, e := range explicit {
		n := 0
		if e != nil {
			n = *e
		} else {
			next += sequence.Step
			for used[next] {
				next += sequence.Step
			}
			n = next
		}
		if used[n] {
			return nil, apperr.Conflict("details[%d]: sequence %d is used twice", i, n)
		}
		used[n] = true
		if n > next {
			next = n
		}
		out[i] = n
	}
	return out, nil
}
