package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	attendanceerrors "go-attendance/internal/attendance/errors"
	"go-attendance/internal/bootstrap"
	"go-attendance/internal/events"
	"go-attendance/internal/geofence"
	"go-attendance/internal/mailer"
	"go-attendance/internal/messaging/kafka"
	"go-attendance/internal/observability/metrics"
	"go-attendance/internal/otp"
	"go-attendance/internal/shared/apperror"
	"go-attendance/internal/shared/contextutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	actionInitiateClockIn  = "initiate_clock_in"
	actionVerifyClockIn    = "verify_clock_in"
	actionInitiateClockOut = "initiate_clock_out"
	actionVerifyClockOut   = "verify_clock_out"
)

//go:generate mockgen -source=attendance_service.go -destination=mock/attendance_service_mock.go -package=mock
type Service interface {
	InitiateClockIn(ctx context.Context, actor Actor, req LocationRequest) (InitiateResponse, error)
	VerifyClockIn(ctx context.Context, actor Actor, req VerifyClockInRequest) (ClockInResponse, error)
	InitiateClockOut(ctx context.Context, actor Actor, req LocationRequest) (InitiateResponse, error)
	VerifyClockOut(ctx context.Context, actor Actor, req VerifyClockOutRequest) (ClockOutResponse, error)
	GetToday(ctx context.Context, actor Actor) (TodayResponse, error)
	List(ctx context.Context, actor Actor, canReadAll bool, q ListQuery) ([]AttendanceResponse, error)
}

// Policy is the office configuration the orchestrators enforce.
type Policy struct {
	Fence        geofence.Fence
	Hours        OfficeHours
	ChallengeTTL time.Duration
}

type ServiceDeps struct {
	DB     *sql.DB
	Repo   Repository
	Outbox kafka.OutboxRepository // optional
	Store  otp.Store
	Mailer mailer.Sender
	Audit  bootstrap.AuditLogger // optional
	Policy Policy

	Now          func() time.Time // defaults to time.Now
	GenerateCode otp.Generator    // defaults to otp.GenerateCode
}

type service struct {
	db       *sql.DB
	repo     Repository
	outbox   kafka.OutboxRepository
	store    otp.Store
	mailer   mailer.Sender
	audit    bootstrap.AuditLogger
	policy   Policy
	now      func() time.Time
	generate otp.Generator
	logger   *zap.Logger
}

func NewService(deps ServiceDeps, logger ...*zap.Logger) Service {
	l := zap.L().Named("attendance.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("attendance.service")
	}

	s := &service{
		db:       deps.DB,
		repo:     deps.Repo,
		outbox:   deps.Outbox,
		store:    deps.Store,
		mailer:   deps.Mailer,
		audit:    deps.Audit,
		policy:   deps.Policy,
		now:      deps.Now,
		generate: deps.GenerateCode,
		logger:   l,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generate == nil {
		s.generate = otp.GenerateCode
	}
	if s.policy.ChallengeTTL <= 0 {
		s.policy.ChallengeTTL = otp.DefaultTTL
	}
	return s
}

func (s *service) InitiateClockIn(ctx context.Context, actor Actor, req LocationRequest) (resp InitiateResponse, err error) {
	defer func() { s.observe(ctx, actionInitiateClockIn, actor, err) }()

	employeeID, err := parseEmployeeID(actor)
	if err != nil {
		return InitiateResponse{}, err
	}
	point, err := requireLocation(req.Latitude, req.Longitude)
	if err != nil {
		return InitiateResponse{}, err
	}
	if err := s.checkFence(ctx, point); err != nil {
		return InitiateResponse{}, err
	}

	existing, err := s.findToday(ctx, s.repo, employeeID, s.now())
	if err != nil {
		return InitiateResponse{}, err
	}
	if existing != nil {
		return InitiateResponse{}, attendanceerrors.ErrAlreadyClockedIn
	}

	ch, err := s.issueChallenge(ctx, otp.KindClockIn, actor, otp.Context{}, mailer.ClockInOTP)
	if err != nil {
		return InitiateResponse{}, err
	}

	return InitiateResponse{
		Message:   "OTP sent to your email",
		ExpiresAt: ch.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *service) VerifyClockIn(ctx context.Context, actor Actor, req VerifyClockInRequest) (resp ClockInResponse, err error) {
	defer func() { s.observe(ctx, actionVerifyClockIn, actor, err) }()

	employeeID, err := parseEmployeeID(actor)
	if err != nil {
		return ClockInResponse{}, err
	}
	if strings.TrimSpace(req.OTP) == "" {
		return ClockInResponse{}, attendanceerrors.ErrCodeRequired
	}
	point, err := requireLocation(req.Latitude, req.Longitude)
	if err != nil {
		return ClockInResponse{}, err
	}

	now := s.now()
	if _, err := s.redeem(ctx, otp.KindClockIn, actor.EmployeeID, req.OTP, now); err != nil {
		return ClockInResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClockInResponse{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	existing, err := s.findToday(ctx, qtx, employeeID, now)
	if err != nil {
		return ClockInResponse{}, err
	}
	if existing != nil {
		s.consume(ctx, otp.KindClockIn, actor.EmployeeID)
		return ClockInResponse{}, attendanceerrors.ErrAlreadyClockedIn
	}

	row := NewClockIn(employeeID, now, s.policy.Hours, point)
	if err := qtx.Create(ctx, row); err != nil {
		err = mapRepositoryError(err)
		if errors.Is(err, attendanceerrors.ErrAlreadyClockedIn) {
			s.consume(ctx, otp.KindClockIn, actor.EmployeeID)
			return ClockInResponse{}, err
		}
		return ClockInResponse{}, fmt.Errorf("create attendance: %w", err)
	}

	if err := s.enqueue(ctx, tx, events.AttendanceClockedIn, actor, row); err != nil {
		return ClockInResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return ClockInResponse{}, fmt.Errorf("commit: %w", err)
	}

	s.consume(ctx, otp.KindClockIn, actor.EmployeeID)
	s.auditLog(ctx, "ATTENDANCE_CLOCK_IN", actor, "clocked in", map[string]any{
		"attendance_id": row.ID.String(),
		"is_late":       row.IsLate,
	})

	return ClockInResponse{
		Message:    "Clock-in successful",
		IsLate:     row.IsLate,
		Attendance: mapToResponse(*row),
	}, nil
}

func (s *service) InitiateClockOut(ctx context.Context, actor Actor, req LocationRequest) (resp InitiateResponse, err error) {
	defer func() { s.observe(ctx, actionInitiateClockOut, actor, err) }()

	employeeID, err := parseEmployeeID(actor)
	if err != nil {
		return InitiateResponse{}, err
	}
	point, err := requireLocation(req.Latitude, req.Longitude)
	if err != nil {
		return InitiateResponse{}, err
	}
	if err := s.checkFence(ctx, point); err != nil {
		return InitiateResponse{}, err
	}

	existing, err := s.findToday(ctx, s.repo, employeeID, s.now())
	if err != nil {
		return InitiateResponse{}, err
	}
	switch StateOf(existing) {
	case StateNoRecord:
		return InitiateResponse{}, attendanceerrors.ErrNotClockedIn
	case StateClockedOut:
		return InitiateResponse{}, attendanceerrors.ErrAlreadyClockedOut
	}

	ch, err := s.issueChallenge(ctx, otp.KindClockOut, actor, otp.Context{Location: &point}, mailer.ClockOutOTP)
	if err != nil {
		return InitiateResponse{}, err
	}

	return InitiateResponse{
		Message:   "OTP sent to your email",
		ExpiresAt: ch.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *service) VerifyClockOut(ctx context.Context, actor Actor, req VerifyClockOutRequest) (resp ClockOutResponse, err error) {
	defer func() { s.observe(ctx, actionVerifyClockOut, actor, err) }()

	employeeID, err := parseEmployeeID(actor)
	if err != nil {
		return ClockOutResponse{}, err
	}
	if strings.TrimSpace(req.OTP) == "" {
		return ClockOutResponse{}, attendanceerrors.ErrCodeRequired
	}

	now := s.now()
	ch, err := s.redeem(ctx, otp.KindClockOut, actor.EmployeeID, req.OTP, now)
	if err != nil {
		return ClockOutResponse{}, err
	}
	if ch.Context.Location == nil {
		s.consume(ctx, otp.KindClockOut, actor.EmployeeID)
		return ClockOutResponse{}, attendanceerrors.ErrNoChallenge
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClockOutResponse{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	row, err := s.findToday(ctx, qtx, employeeID, now)
	if err != nil {
		return ClockOutResponse{}, err
	}
	if err := row.CloseAt(now, *ch.Context.Location); err != nil {
		s.consume(ctx, otp.KindClockOut, actor.EmployeeID)
		return ClockOutResponse{}, err
	}

	if err := qtx.Update(ctx, row); err != nil {
		err = mapRepositoryError(err)
		if errors.Is(err, attendanceerrors.ErrAlreadyClockedOut) {
			s.consume(ctx, otp.KindClockOut, actor.EmployeeID)
			return ClockOutResponse{}, err
		}
		return ClockOutResponse{}, fmt.Errorf("update attendance: %w", err)
	}

	if err := s.enqueue(ctx, tx, events.AttendanceClockedOut, actor, row); err != nil {
		return ClockOutResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return ClockOutResponse{}, fmt.Errorf("commit: %w", err)
	}

	s.consume(ctx, otp.KindClockOut, actor.EmployeeID)
	s.auditLog(ctx, "ATTENDANCE_CLOCK_OUT", actor, "clocked out", map[string]any{
		"attendance_id":      row.ID.String(),
		"total_hours_worked": *row.TotalHoursWorked,
	})

	return ClockOutResponse{
		Message:          "Clock-out successful",
		TotalHoursWorked: *row.TotalHoursWorked,
		Attendance:       mapToResponse(*row),
	}, nil
}

func (s *service) GetToday(ctx context.Context, actor Actor) (TodayResponse, error) {
	employeeID, err := parseEmployeeID(actor)
	if err != nil {
		return TodayResponse{}, err
	}

	row, err := s.findToday(ctx, s.repo, employeeID, s.now())
	if err != nil {
		return TodayResponse{}, err
	}

	resp := TodayResponse{State: string(StateOf(row))}
	if row != nil {
		r := mapToResponse(*row)
		resp.Attendance = &r
	}
	return resp, nil
}

// List returns history newest first. Without read_all the caller only ever
// sees their own records, whatever employee_id they ask for.
func (s *service) List(ctx context.Context, actor Actor, canReadAll bool, q ListQuery) ([]AttendanceResponse, error) {
	filter, err := parseListQuery(q)
	if err != nil {
		return nil, err
	}

	if !canReadAll {
		if _, err := parseEmployeeID(actor); err != nil {
			return nil, err
		}
		filter.EmployeeID = actor.EmployeeID
	} else if filter.EmployeeID != "" {
		if _, err := uuid.Parse(filter.EmployeeID); err != nil {
			return nil, attendanceerrors.ErrInvalidEmployeeID
		}
	}

	rows, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		s.logFor(ctx).Error("list attendance failed", zap.Error(err))
		return nil, err
	}

	res := make([]AttendanceResponse, len(rows))
	for i, r := range rows {
		res[i] = mapToResponse(r)
	}
	return res, nil
}

func (s *service) checkFence(ctx context.Context, point geofence.Point) error {
	inside, distance := s.policy.Fence.Contains(point)
	if !inside {
		s.logFor(ctx).Info("location outside office fence",
			zap.Float64("distance_m", distance),
			zap.Float64("radius_m", s.policy.Fence.RadiusMeters),
		)
		return attendanceerrors.ErrOutOfRange
	}
	return nil
}

// findToday returns nil, nil when the employee has no record for the
// office calendar day containing at.
func (s *service) findToday(ctx context.Context, repo Repository, employeeID uuid.UUID, at time.Time) (*Attendance, error) {
	day := DayOf(at, s.policy.Hours.Location)
	row, err := repo.FindByEmployeeAndDate(ctx, employeeID.String(), day)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return row, nil
}

// issueChallenge stores a fresh code and mails it. A failed send leaves no
// pending challenge behind.
func (s *service) issueChallenge(
	ctx context.Context,
	kind otp.Kind,
	actor Actor,
	payload otp.Context,
	render func(name, code string, ttl time.Duration) (string, string),
) (otp.Challenge, error) {
	code, err := s.generate()
	if err != nil {
		return otp.Challenge{}, fmt.Errorf("generate otp: %w", err)
	}

	ch, err := s.store.Issue(ctx, kind, actor.EmployeeID, code, s.policy.ChallengeTTL, payload)
	if err != nil {
		return otp.Challenge{}, fmt.Errorf("issue otp: %w", err)
	}

	subject, body := render(actor.displayName(), code, s.policy.ChallengeTTL)
	if err := s.mailer.Send(ctx, actor.Email, subject, body); err != nil {
		s.logFor(ctx).Error("send otp mail failed", zap.String("kind", string(kind)), zap.Error(err))
		metrics.ObserveMail(string(kind), metrics.ResultFailed)
		s.consume(ctx, kind, actor.EmployeeID)
		mailErr := attendanceerrors.ErrMailFailed
		return otp.Challenge{}, apperror.Wrap(err, mailErr.Code, mailErr.Message, mailErr.HTTPStatus)
	}
	metrics.ObserveMail(string(kind), metrics.ResultOK)

	s.logFor(ctx).Debug("otp issued",
		zap.String("kind", string(kind)),
		zap.Time("expires_at", ch.ExpiresAt),
	)
	return ch, nil
}

// redeem validates a submitted code. Expired and wrong codes burn the
// challenge so a new initiate is required.
func (s *service) redeem(ctx context.Context, kind otp.Kind, identity, code string, now time.Time) (otp.Challenge, error) {
	ch, err := s.store.Lookup(ctx, kind, identity)
	if err != nil {
		if errors.Is(err, otp.ErrChallengeNotFound) {
			return otp.Challenge{}, attendanceerrors.ErrNoChallenge
		}
		return otp.Challenge{}, fmt.Errorf("lookup otp: %w", err)
	}

	if ch.Expired(now) {
		s.consume(ctx, kind, identity)
		return otp.Challenge{}, attendanceerrors.ErrExpired
	}
	if !ch.Matches(strings.TrimSpace(code)) {
		s.consume(ctx, kind, identity)
		return otp.Challenge{}, attendanceerrors.ErrMismatch
	}
	return ch, nil
}

// consume outlives request cancellation; a leftover challenge would still
// be redeemable.
func (s *service) consume(ctx context.Context, kind otp.Kind, identity string) {
	if err := s.store.Consume(context.WithoutCancel(ctx), kind, identity); err != nil {
		s.logFor(ctx).Warn("consume otp failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *service) enqueue(ctx context.Context, tx *sql.Tx, eventType string, actor Actor, row *Attendance) error {
	if s.outbox == nil {
		return nil
	}

	rid := contextutil.GetRequestID(ctx)
	event := events.AttendanceEvent{
		EventType:        eventType,
		RequestID:        rid,
		AttendanceID:     row.ID.String(),
		EmployeeID:       row.EmployeeID.String(),
		EmployeeEmail:    actor.Email,
		EmployeeName:     actor.displayName(),
		AttendanceDate:   row.AttendanceDate.Format(dateLayout),
		ClockIn:          row.ClockIn,
		ClockOut:         row.ClockOut,
		IsLate:           row.IsLate,
		TotalHoursWorked: row.TotalHoursWorked,
		OccurredAt:       s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.NewString(),
		RequestID:     rid,
		AggregateType: "attendance",
		AggregateID:   row.ID.String(),
		EventType:     eventType,
		Topic:         events.AttendanceLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		return fmt.Errorf("outbox %s: %w", eventType, err)
	}
	return nil
}

func (s *service) observe(ctx context.Context, action string, actor Actor, err error) {
	result := metrics.ResultOK
	if err != nil {
		result = apperror.ToHTTP(err).Code
	}
	metrics.ObserveAction(action, result)

	log := s.logFor(ctx).With(zap.String("action", action), zap.String("employee_id", actor.EmployeeID))
	var appErr *apperror.AppError
	switch {
	case err == nil:
		log.Info("attendance action ok")
	case errors.As(err, &appErr):
		log.Info("attendance action rejected", zap.String("code", appErr.Code))
	default:
		log.Error("attendance action failed", zap.Error(err))
	}
}

func (s *service) auditLog(ctx context.Context, action string, actor Actor, message string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, bootstrap.AuditLog{
		Action:  action,
		Actor:   actor.EmployeeID,
		Message: message,
		Meta:    meta,
	})
}

func (s *service) logFor(ctx context.Context) *zap.Logger {
	return s.logger.With(contextutil.ExtractMetadata(ctx).Fields()...)
}

func (a Actor) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

func parseEmployeeID(actor Actor) (uuid.UUID, error) {
	id, err := uuid.Parse(actor.EmployeeID)
	if err != nil {
		return uuid.Nil, attendanceerrors.ErrInvalidEmployeeID
	}
	return id, nil
}

func requireLocation(lat, lon *float64) (geofence.Point, error) {
	if lat == nil || lon == nil {
		return geofence.Point{}, attendanceerrors.ErrLocationRequired
	}
	p := geofence.Point{Latitude: *lat, Longitude: *lon}
	if err := p.Validate(); err != nil {
		return geofence.Point{}, attendanceerrors.ErrInvalidCoordinates
	}
	return p, nil
}

func parseListQuery(q ListQuery) (ListFilter, error) {
	filter := ListFilter{EmployeeID: strings.TrimSpace(q.EmployeeID)}

	parse := func(v string) (*time.Time, error) {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, attendanceerrors.ErrInvalidDateFilter
		}
		return &t, nil
	}

	var err error
	if filter.Date, err = parse(q.Date); err != nil {
		return ListFilter{}, err
	}
	if filter.StartDate, err = parse(q.StartDate); err != nil {
		return ListFilter{}, err
	}
	if filter.EndDate, err = parse(q.EndDate); err != nil {
		return ListFilter{}, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return ListFilter{}, attendanceerrors.ErrInvalidDateFilter
	}
	return filter, nil
}

func mapToResponse(a Attendance) AttendanceResponse {
	resp := AttendanceResponse{
		ID:                a.ID.String(),
		EmployeeID:        a.EmployeeID.String(),
		AttendanceDate:    a.AttendanceDate.Format(dateLayout),
		ClockIn:           a.ClockIn.UTC().Format(time.RFC3339),
		IsLate:            a.IsLate,
		Status:            a.Status,
		TotalHoursWorked:  a.TotalHoursWorked,
		ClockInLatitude:   a.ClockInLatitude,
		ClockInLongitude:  a.ClockInLongitude,
		ClockOutLatitude:  a.ClockOutLatitude,
		ClockOutLongitude: a.ClockOutLongitude,
	}
	if a.ClockOut != nil {
		v := a.ClockOut.UTC().Format(time.RFC3339)
		resp.ClockOut = &v
	}
	return resp
}
