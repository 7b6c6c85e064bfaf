package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/config"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
)

// Store is the gorm implementation of store.Database.
type Store struct {
	db            *gorm.DB
	logger        *zap.Logger
	transactional bool
}

var _ store.Database = (*Store)(nil)

func NewStore(cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return NewStoreFromDB(db, log, cfg.TransactionalUnits), nil
}

// NewStoreFromDB wraps an open connection. With transactional set, every unit
// of work runs inside one database transaction.
func NewStoreFromDB(db *gorm.DB, log *zap.Logger, transactional bool) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, logger: log, transactional: transactional}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(model.All()...)
}

func (s *Store) query(ctx context.Context, q store.Query) *gorm.DB {
	db := s.db.WithContext(ctx)
	if q.Table != "" {
		db = db.Table(q.Table)
	}
	if q.Select != "" {
		db = db.Select(q.Select)
	}
	for _, c := range q.Where {
		switch c.Op {
		case store.OpIsNull, store.OpNotNull:
			db = db.Where(c.Column + " " + string(c.Op))
		case store.OpIn:
			db = db.Where(c.Column+" IN ?", c.Value)
		default:
			db = db.Where(fmt.Sprintf("%s %s ?", c.Column, c.Op), c.Value)
		}
	}
	if q.LiveOnly {
		db = db.Where("status = ?", true)
	}
	db = db.Scopes(q.Scope.Gorm(""))
	for _, rel := range q.Preload {
		db = db.Preload(rel, "status = ?", true)
	}
	if q.Order != "" {
		db = db.Order(q.Order)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

func (s *Store) Find(ctx context.Context, dest interface{}, q store.Query) error {
	return wrap(s.query(ctx, q).Find(dest).Error)
}

func (s *Store) FindOne(ctx context.Context, dest interface{}, q store.Query) error {
	return wrap(s.query(ctx, q).Take(dest).Error)
}

func (s *Store) Count(ctx context.Context, table string, q store.Query) (int64, error) {
	q.Table = table
	q.Limit, q.Offset, q.Order = 0, 0, ""
	var n int64
	err := s.query(ctx, q).Count(&n).Error
	return n, wrap(err)
}

func (s *Store) Insert(ctx context.Context, record interface{}) error {
	return wrap(s.db.WithContext(ctx).Create(record).Error)
}

func (s *Store) Update(ctx context.Context, m interface{}, q store.Query, patch map[string]interface{}) (int64, error) {
	if len(q.Where) == 0 {
		return 0, apperr.Validation("update requires a condition")
	}
	db := s.query(ctx, q)
	if m != nil {
		db = db.Model(m)
	}
	res := db.Updates(patch)
	return res.RowsAffected, wrap(res.Error)
}

// Run executes the unit's steps. Without transactional units each step commits
// on its own and a failure past the first step leaves earlier writes applied.
func (s *Store) Run(ctx context.Context, unit store.Unit, steps ...store.Step) error {
	if s.transactional {
		return s.runTx(ctx, unit, steps)
	}

	for i, step := range steps {
		if err := step.Do(ctx, s); err != nil {
			if i == 0 {
				return apperr.Store(err)
			}
			s.logPartial(unit, step.Name, err)
			metrics.PartialUnitsTotal.WithLabelValues(unit.Name, step.Name).Inc()
			return apperr.Partial(unit.Name, step.Name, err)
		}
	}
	return nil
}

func (s *Store) runTx(ctx context.Context, unit store.Unit, steps []store.Step) error {
	var failed string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &Store{db: tx, logger: s.logger}
		for _, step := range steps {
			if err := step.Do(ctx, txStore); err != nil {
				failed = step.Name
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("unit of work rolled back",
			zap.String("unit", unit.Name),
			zap.String("step", failed),
			zap.String("entity", unit.Entity),
			zap.String("id", unit.ID.String()),
			zap.Error(err),
		)
		return apperr.Store(err)
	}
	return nil
}

func (s *Store) logPartial(unit store.Unit, step string, err error) {
	s.logger.Error("unit of work partially applied",
		zap.String("unit", unit.Name),
		zap.String("step", step),
		zap.String("entity", unit.Entity),
		zap.String("id", unit.ID.String()),
		zap.String("company_id", unit.CompanyID.String()),
		zap.Error(err),
	)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return apperr.Store(err)
}
