package app

import (
	"context"
	"database/sql"
	"net/http"

	"go-attendance/internal/attendance"
	"go-attendance/internal/bootstrap"
	"go-attendance/internal/config"
	"go-attendance/internal/geofence"
	"go-attendance/internal/mailer"
	"go-attendance/internal/messaging/kafka"
	"go-attendance/internal/middleware"
	"go-attendance/internal/observability/metrics"
	"go-attendance/internal/otp"
	"go-attendance/internal/rbac"
	"go-attendance/internal/rbac/infra"
	"go-attendance/internal/shared/apperror"
	"go-attendance/internal/shared/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type modules struct {
	cfg    config.Config
	db     *sql.DB
	gormDB *gorm.DB
	rdb    *redis.Client // nil unless OTP_STORE=redis
	logger *zap.Logger
}

func registerModules(ctx context.Context, router *gin.Engine, m modules) error {
	router.Use(middleware.ContextLogger(m.logger), middleware.HTTPMetrics())

	// --- Repositories ---
	rbacRepo := rbac.NewRepository(m.gormDB)
	attendanceRepo := attendance.NewRepository(m.gormDB)
	outboxRepo := kafka.NewOutboxRepository(m.db)

	// --- RBAC Core ---
	enforcer, err := infra.NewEnforcer()
	if err != nil {
		return err
	}
	rbacService := rbac.NewService(rbacRepo, enforcer)
	if err := rbacService.LoadPolicy(ctx); err != nil {
		return err
	}

	// --- Services ---
	hour, minute := m.cfg.OfficeStart()
	attendanceService := attendance.NewService(attendance.ServiceDeps{
		DB:     m.db,
		Repo:   attendanceRepo,
		Outbox: outboxRepo,
		Store:  newChallengeStore(ctx, m),
		Mailer: NewMailer(m.cfg),
		Audit:  bootstrap.NewStdoutAuditLogger(),
		Policy: attendance.Policy{
			Fence: geofence.New(geofence.Point{
				Latitude:  m.cfg.OfficeLatitude,
				Longitude: m.cfg.OfficeLongitude,
			}, m.cfg.AllowedDistanceMeters),
			Hours: attendance.OfficeHours{
				StartHour:   hour,
				StartMinute: minute,
				Location:    m.cfg.OfficeLocation(),
			},
			ChallengeTTL: m.cfg.OTPTTL,
		},
	})

	// --- Handlers ---
	attendanceHandler := attendance.NewHandler(attendanceService)
	rbacHandler := rbac.NewHandler(rbacService)

	var initiateLimit gin.HandlerFunc
	if m.cfg.RateLimitEnabled {
		initiateLimit = middleware.RateLimitByEmployee(rate.Limit(m.cfg.RateLimitRPS), m.cfg.RateLimitBurst)
	}

	// --- Routes Registration ---
	router.GET("/healthz", healthz(m.db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(func(c *gin.Context) { writeAppError(c, apperror.ErrNotFound) })

	api := router.Group("/api/v1", middleware.AuthMiddleware(m.cfg.JWTSecret))
	{
		attendance.RegisterRoutes(api, attendanceHandler, rbacService, initiateLimit)
		rbac.RegisterRoutes(api, rbacHandler)
	}

	return nil
}

// newChallengeStore picks the OTP backend. The memory store is swept in
// the background until ctx is done.
func newChallengeStore(ctx context.Context, m modules) otp.Store {
	if m.cfg.OTPStore == "redis" && m.rdb != nil {
		return otp.NewRedisStore(m.rdb, m.cfg.RedisPrefix, nil)
	}

	store := otp.NewMemoryStore(nil)
	go store.RunSweeper(ctx, m.cfg.OTPSweepInterval, func(removed, remaining int) {
		metrics.ObserveSweep(removed, remaining)
		if removed > 0 {
			m.logger.Debug("expired otp challenges swept", zap.Int("removed", removed), zap.Int("remaining", remaining))
		}
	})
	return store
}

func NewMailer(cfg config.Config) mailer.Sender {
	if cfg.MailDriver == "log" {
		return mailer.NewLogSender()
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	})
}

func healthz(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			zap.L().Named("app.healthz").Warn("database ping failed", zap.Error(err))
			writeAppError(c, apperror.ErrUnavailable)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"}, nil)
	}
}

func writeAppError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}
