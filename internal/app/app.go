package app

import (
	"context"
	"fmt"

	"go-attendance/internal/attendance"
	"go-attendance/internal/config"
	"go-attendance/internal/messaging/kafka"
	"go-attendance/internal/rbac"
	"go-attendance/internal/shared/connection"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const connectRetries = 5

// BuildApp connects infrastructure, prepares the schema and mounts every
// module on router. The returned cleanup closes the connections; background
// jobs stop when ctx is done.
func BuildApp(ctx context.Context, router *gin.Engine, cfg config.Config) (func(), error) {
	logger := zap.L().Named("app")

	gormDB, err := connection.ConnectGORMWithRetry(postgresConfig(cfg), connectRetries)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established")

	closers := []func(){func() { _ = sqlDB.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var rdb *redis.Client
	if cfg.OTPStore == "redis" {
		rdb, err = connection.ConnectRedisWithRetry(connection.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, connectRetries)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		logger.Info("redis connection established")
	}

	if cfg.DBMigrate {
		if err := migrate(ctx, gormDB); err != nil {
			cleanup()
			return nil, err
		}
		logger.Info("schema migrated")
	}

	if err := registerModules(ctx, router, modules{
		cfg:    cfg,
		db:     sqlDB,
		gormDB: gormDB,
		rdb:    rdb,
		logger: logger,
	}); err != nil {
		cleanup()
		return nil, err
	}

	return cleanup, nil
}

func migrate(ctx context.Context, gormDB *gorm.DB) error {
	if err := gormDB.WithContext(ctx).AutoMigrate(
		&attendance.Attendance{},
		&rbac.RolePermission{},
		&rbac.RoleParent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	if err := kafka.EnsureSchema(ctx, sqlDB); err != nil {
		return err
	}

	return rbac.NewRepository(gormDB).SeedDefaults(ctx)
}

func postgresConfig(cfg config.Config) connection.PostgresConfig {
	return connection.PostgresConfig{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		Port:     cfg.DBPort,
		SSLMode:  cfg.DBSSLMode,
	}
}
