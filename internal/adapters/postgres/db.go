package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// activeInstanceIndexDDL is shared by the SQL migrations and the SQLite
// AutoMigrate path; both dialects support partial indexes.
const activeInstanceIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS uq_activations_active_instance
	ON activations (license_id, instance_identifier)
	WHERE deactivated_at IS NULL`

// Connect opens and validates a GORM connection pool for driver.
// SQLite pools are pinned to one connection so in-memory databases survive
// and writers never contend on the file lock.
func Connect(ctx context.Context, driver, dsn string, maxConns int32, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(
		zap.String("module", "postgres"),
		zap.String("layer", "adapter"),
		zap.String("operation", "connect"),
		zap.String("driver", driver),
	)
	log.Info("database connect started", zap.String("outcome", "start"))

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
		maxConns = 1
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(max(int(maxConns)/2, 1))
	}
	if driver == DriverPostgres {
		sqlDB.SetConnMaxIdleTime(15 * time.Minute)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	log.Info("database connect completed", zap.String("outcome", "success"))
	return db, nil
}

// RunMigrations brings the schema up to date. Postgres applies the embedded
// SQL files in lexical order; SQLite is migrated from the models.
func RunMigrations(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(
		zap.String("module", "postgres"),
		zap.String("layer", "adapter"),
		zap.String("operation", "run_migrations"),
	)

	if db.Dialector.Name() != DriverPostgres {
		if err := db.WithContext(ctx).AutoMigrate(autoMigrateModels...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := db.WithContext(ctx).Exec(activeInstanceIndexDDL).Error; err != nil {
			return fmt.Errorf("create active instance index: %w", err)
		}
		log.Info("schema migrated from models", zap.String("outcome", "success"))
		return nil
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	// Migration files hold several statements, which cannot go through the
	// prepared statement cache.
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	log.Info("postgres migrations started", zap.String("outcome", "start"), zap.Int("migration_count", len(names)))

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := sqlDB.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.Debug("migration applied", zap.String("migration", name))
	}
	log.Info("postgres migrations completed", zap.String("outcome", "success"), zap.Int("migration_count", len(names)))
	return nil
}
