package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/store/storetest"
	"github.com/prodflow/prodflow/pkg/tenant"
)

func scopeFor(company uuid.UUID) tenant.Scope {
	return tenant.For(tenant.Actor{ID: "u-" + company.String()[:8], CompanyID: company, Roles: []tenant.Role{tenant.RoleUser}})
}

func TestFindAppliesScope(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.Insert(ctx, &model.Warehouse{Base: model.NewBase(a, "u1"), Code: "WA", Name: "A"}))
	require.NoError(t, s.Insert(ctx, &model.Warehouse{Base: model.NewBase(b, "u2"), Code: "WB", Name: "B"}))

	var got []model.Warehouse
	require.NoError(t, s.Find(ctx, &got, store.Query{Scope: scopeFor(a)}))
	require.Len(t, got, 1)
	assert.Equal(t, "WA", got[0].Code)

	got = nil
	require.NoError(t, s.Find(ctx, &got, store.Query{Scope: tenant.System("test")}))
	assert.Len(t, got, 2)

	got = nil
	require.NoError(t, s.Find(ctx, &got, store.Query{}))
	assert.Empty(t, got, "zero scope must match nothing")
}

func TestFindOneOutsideScopeIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)

	w := &model.Warehouse{Base: model.NewBase(uuid.New(), "u1"), Code: "W1", Name: "Main"}
	require.NoError(t, s.Insert(ctx, w))

	var got model.Warehouse
	err := store.Get(ctx, s, scopeFor(uuid.New()), &got, w.ID, "warehouse")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "warehouse not found", apperr.Message(err))
}

func TestLoadParent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	company := uuid.New()

	live := &model.Recipe{Base: model.NewBase(company, "u1"), Code: "R1", Name: "Live"}
	dead := &model.Recipe{Base: model.NewBase(company, "u1"), Code: "R2", Name: "Dead"}
	dead.Status = false
	require.NoError(t, s.Insert(ctx, live))
	require.NoError(t, s.Insert(ctx, dead))

	var r model.Recipe
	require.NoError(t, store.LoadParent(ctx, s, scopeFor(company), &r, live.ID, "recipe", company))

	var inactive model.Recipe
	err := store.LoadParent(ctx, s, scopeFor(company), &inactive, dead.ID, "recipe", company)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))
	assert.Equal(t, "recipe is inactive", apperr.Message(err))

	var foreign model.Recipe
	err = store.LoadParent(ctx, s, tenant.System("test"), &foreign, live.ID, "recipe", uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestGetReusesDestination(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	company := uuid.New()

	first := &model.Recipe{Base: model.NewBase(company, "u1"), Code: "R1", Name: "First"}
	second := &model.Recipe{Base: model.NewBase(company, "u1"), Code: "R2", Name: "Second"}
	require.NoError(t, s.Insert(ctx, first))
	require.NoError(t, s.Insert(ctx, second))

	var r model.Recipe
	require.NoError(t, store.Get(ctx, s, scopeFor(company), &r, first.ID, "recipe"))
	require.NoError(t, store.Get(ctx, s, scopeFor(company), &r, second.ID, "recipe"))
	assert.Equal(t, "R2", r.Code)
}

func TestReadHidesSoftDeleted(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	company := uuid.New()

	w := &model.Warehouse{Base: model.NewBase(company, "u1"), Code: "W1", Name: "Main"}
	w.Status = false
	require.NoError(t, s.Insert(ctx, w))

	var got model.Warehouse
	err := store.Read(ctx, s, scopeFor(company), &got, w.ID, "warehouse")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	var inactive model.Warehouse
	require.NoError(t, store.Read(ctx, s, scopeFor(company), &inactive, w.ID, "warehouse", store.ReadOptions{IncludeInactive: true}))
	assert.False(t, inactive.Status)
}

func TestRunReportsPartial(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	company := uuid.New()
	w := &model.Warehouse{Base: model.NewBase(company, "u1"), Code: "W1", Name: "Main"}

	err := s.Run(ctx, store.Unit{Name: "test.unit", Entity: "warehouse", ID: w.ID, CompanyID: company},
		store.Step{Name: "insert", Do: func(ctx context.Context, tx store.Store) error { return tx.Insert(ctx, w) }},
		store.Step{Name: "explode", Do: func(context.Context, store.Store) error { return errors.New("boom") }},
	)
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindPartial, appErr.Kind)
	assert.Equal(t, "explode", appErr.Step)

	var got model.Warehouse
	require.NoError(t, store.Get(ctx, s, scopeFor(company), &got, w.ID, "warehouse"), "first step stays applied")
}

func TestRunFirstStepFailureIsNotPartial(t *testing.T) {
	s := storetest.New(t)
	err := s.Run(context.Background(), store.Unit{Name: "test.unit"},
		store.Step{Name: "conflict", Do: func(context.Context, store.Store) error { return apperr.Conflict("taken") }},
	)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestTransactionalRunRollsBack(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTransactional(t)
	company := uuid.New()
	w := &model.Warehouse{Base: model.NewBase(company, "u1"), Code: "W1", Name: "Main"}

	err := s.Run(ctx, store.Unit{Name: "test.unit"},
		store.Step{Name: "insert", Do: func(ctx context.Context, tx store.Store) error { return tx.Insert(ctx, w) }},
		store.Step{Name: "explode", Do: func(context.Context, store.Store) error { return errors.New("boom") }},
	)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStore, apperr.KindOf(err))

	var got model.Warehouse
	err = store.Get(ctx, s, scopeFor(company), &got, w.ID, "warehouse")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateRequiresCondition(t *testing.T) {
	s := storetest.New(t)
	_, err := s.Update(context.Background(), &model.Warehouse{}, store.Query{Scope: tenant.System("test")}, map[string]interface{}{"name": "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return postgres.NewStoreFromDB(db, zap.NewNop(), false), mock
}

func TestFindOneDriverErrorIsStoreError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "warehouses"`).WillReturnError(errors.New("connection reset"))

	var w model.Warehouse
	err := store.Get(context.Background(), s, tenant.System("test"), &w, uuid.New(), "warehouse")
	require.Error(t, err)
	assert.Equal(t, apperr.KindStore, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOneNoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "warehouses"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var w model.Warehouse
	err := store.Get(context.Background(), s, scopeFor(uuid.New()), &w, uuid.New(), "warehouse")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
