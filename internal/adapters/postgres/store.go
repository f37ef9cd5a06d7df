package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// Store is the gorm-backed ports.Store. The same code runs against Postgres
// and SQLite; row locks are only taken on Postgres.
type Store struct {
	db         *gorm.DB
	maxRetries int
	logger     *zap.Logger
}

func NewStore(db *gorm.DB, maxRetries int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{
		db:         db,
		maxRetries: maxRetries,
		logger:     logger.With(zap.String("module", "postgres"), zap.String("layer", "adapter")),
	}
}

// WithinTx runs fn in a database transaction. Serialization failures and
// deadlocks are retried with a growing pause, up to maxRetries times; fn must
// therefore rebuild any result it captures on every call.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(ctx, &gormTx{db: db})
		})
		if err == nil || !isRetryable(err) || attempt >= s.maxRetries {
			return err
		}

		pause := time.Duration(attempt+1) * 25 * time.Millisecond
		s.logger.Warn("transaction retry scheduled",
			zap.String("operation", "within_tx"),
			zap.String("outcome", "retry"),
			zap.Int("attempt", attempt+1),
			zap.Duration("pause", pause),
			zap.Error(err),
		)
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Brands() ports.BrandRepository           { return &brandRepository{db: t.db} }
func (t *gormTx) Products() ports.ProductRepository       { return &productRepository{db: t.db} }
func (t *gormTx) Customers() ports.CustomerRepository     { return &customerRepository{db: t.db} }
func (t *gormTx) LicenseKeys() ports.LicenseKeyRepository { return &licenseKeyRepository{db: t.db} }
func (t *gormTx) Licenses() ports.LicenseRepository       { return &licenseRepository{db: t.db} }
func (t *gormTx) Activations() ports.ActivationRepository { return &activationRepository{db: t.db} }
func (t *gormTx) AuditLog() ports.AuditLogRepository      { return &auditLogRepository{db: t.db} }
func (t *gormTx) Outbox() ports.OutboxWriter              { return &outboxRepository{db: t.db} }

var (
	_ ports.Store       = (*Store)(nil)
	_ ports.OutboxRelay = (*Store)(nil)
)
