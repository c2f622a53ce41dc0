package attendance_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-attendance/internal/attendance"
	attendanceerrors "go-attendance/internal/attendance/errors"
	attendanceMock "go-attendance/internal/attendance/mock"
	"go-attendance/internal/events"
	"go-attendance/internal/geofence"
	mailerMock "go-attendance/internal/mailer/mock"
	"go-attendance/internal/messaging/kafka"
	kafkaMock "go-attendance/internal/messaging/kafka/mock"
	"go-attendance/internal/otp"
	"go-attendance/internal/shared/contextutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ist    = time.FixedZone("IST", 5*3600+30*60)
	office = geofence.Point{Latitude: 12.9716, Longitude: 77.5946}
)

const testCode = "123456"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type serviceDeps struct {
	db      *sql.DB
	sqlMock sqlmock.Sqlmock
	service attendance.Service
	repo    *attendanceMock.MockRepository
	outbox  *kafkaMock.MockOutboxRepository
	mailer  *mailerMock.MockSender
	store   *otp.MemoryStore
	clock   *fakeClock
	actor   attendance.Actor
	today   time.Time
}

func testPolicy() attendance.Policy {
	return attendance.Policy{
		Fence:        geofence.New(office, 100),
		Hours:        attendance.OfficeHours{StartHour: 9, StartMinute: 0, Location: ist},
		ChallengeTTL: 3 * time.Minute,
	}
}

func setupServiceTest(t *testing.T) *serviceDeps {
	ctrl := gomock.NewController(t)

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 55, 0, 0, ist)}
	store := otp.NewMemoryStore(clock.Now)
	repo := attendanceMock.NewMockRepository(ctrl)
	outbox := kafkaMock.NewMockOutboxRepository(ctrl)
	sender := mailerMock.NewMockSender(ctrl)

	svc := attendance.NewService(attendance.ServiceDeps{
		DB:           db,
		Repo:         repo,
		Outbox:       outbox,
		Store:        store,
		Mailer:       sender,
		Policy:       testPolicy(),
		Now:          clock.Now,
		GenerateCode: func() (string, error) { return testCode, nil },
	}, zap.NewNop())

	return &serviceDeps{
		db:      db,
		sqlMock: sqlMock,
		service: svc,
		repo:    repo,
		outbox:  outbox,
		mailer:  sender,
		store:   store,
		clock:   clock,
		actor: attendance.Actor{
			EmployeeID: uuid.New().String(),
			Email:      "asha@example.com",
			Name:       "Asha",
		},
		today: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func expectTx(t *testing.T, mock sqlmock.Sqlmock, commit bool) {
	t.Helper()
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func f64(v float64) *float64 { return &v }

func atOffice() attendance.LocationRequest {
	return attendance.LocationRequest{Latitude: f64(office.Latitude), Longitude: f64(office.Longitude)}
}

// roughly 1.1 km north of the office
func farAway() attendance.LocationRequest {
	return attendance.LocationRequest{Latitude: f64(office.Latitude + 0.01), Longitude: f64(office.Longitude)}
}

func openRecord(employeeID string, clockIn time.Time) *attendance.Attendance {
	return &attendance.Attendance{
		ID:               uuid.New(),
		EmployeeID:       uuid.MustParse(employeeID),
		AttendanceDate:   attendance.DayOf(clockIn, ist),
		ClockIn:          clockIn,
		Status:           attendance.StatusPresent,
		ClockInLatitude:  office.Latitude,
		ClockInLongitude: office.Longitude,
	}
}

func (d *serviceDeps) issue(t *testing.T, kind otp.Kind, payload otp.Context) {
	t.Helper()
	_, err := d.store.Issue(context.Background(), kind, d.actor.EmployeeID, testCode, 3*time.Minute, payload)
	require.NoError(t, err)
}

func (d *serviceDeps) pending(kind otp.Kind) bool {
	_, err := d.store.Lookup(context.Background(), kind, d.actor.EmployeeID)
	return err == nil
}

func TestAttendanceService_InitiateClockIn(t *testing.T) {
	ctx := context.Background()

	t.Run("success - mails a code and keeps it pending", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(nil, gorm.ErrRecordNotFound)

		deps.mailer.EXPECT().
			Send(gomock.Any(), "asha@example.com", "Your Attendance Clock-In OTP", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _, body string) error {
				assert.Contains(t, body, "Hello Asha,")
				assert.Contains(t, body, "Your OTP to clock in is: "+testCode)
				return nil
			})

		resp, err := deps.service.InitiateClockIn(ctx, deps.actor, atOffice())

		assert.NoError(t, err)
		assert.Equal(t, "2026-03-02T03:28:00Z", resp.ExpiresAt)
		assert.True(t, deps.pending(otp.KindClockIn))
	})

	t.Run("location required", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, attendance.LocationRequest{Latitude: f64(1)})
		assert.ErrorIs(t, err, attendanceerrors.ErrLocationRequired)

		_, err = deps.service.InitiateClockIn(ctx, deps.actor, attendance.LocationRequest{})
		assert.ErrorIs(t, err, attendanceerrors.ErrLocationRequired)
	})

	t.Run("zero coordinates are a location", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, attendance.LocationRequest{Latitude: f64(0), Longitude: f64(0)})
		assert.ErrorIs(t, err, attendanceerrors.ErrOutOfRange)
	})

	t.Run("coordinates out of bounds", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, attendance.LocationRequest{Latitude: f64(95), Longitude: f64(10)})
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidCoordinates)
	})

	t.Run("out of range", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, farAway())
		assert.ErrorIs(t, err, attendanceerrors.ErrOutOfRange)
		assert.False(t, deps.pending(otp.KindClockIn))
	})

	t.Run("already clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(openRecord(deps.actor.EmployeeID, deps.clock.Now()), nil)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedIn)
		assert.False(t, deps.pending(otp.KindClockIn))
	})

	t.Run("mail failure rolls back the challenge", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(nil, gorm.ErrRecordNotFound)
		deps.mailer.EXPECT().
			Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("smtp: 421 try later"))

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrMailFailed)
		assert.False(t, deps.pending(otp.KindClockIn))
	})

	t.Run("repository failure is not masked", func(t *testing.T) {
		deps := setupServiceTest(t)
		dbErr := errors.New("connection reset")

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dbErr)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("invalid employee id", func(t *testing.T) {
		deps := setupServiceTest(t)
		actor := deps.actor
		actor.EmployeeID = "not-a-uuid"

		_, err := deps.service.InitiateClockIn(ctx, actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidEmployeeID)
	})

	t.Run("re-initiate replaces the pending code", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})
		deps.clock.Advance(time.Minute)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)
		deps.mailer.EXPECT().
			Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		_, err := deps.service.InitiateClockIn(ctx, deps.actor, atOffice())
		require.NoError(t, err)

		ch, err := deps.store.Lookup(ctx, otp.KindClockIn, deps.actor.EmployeeID)
		require.NoError(t, err)
		assert.Equal(t, deps.clock.Now().Add(3*time.Minute), ch.ExpiresAt)
	})
}

func TestAttendanceService_VerifyClockIn(t *testing.T) {
	ctx := contextutil.WithRequestID(context.Background(), "rid-clock-in")

	verifyReq := func(code string) attendance.VerifyClockInRequest {
		return attendance.VerifyClockInRequest{
			OTP:       code,
			Latitude:  f64(office.Latitude),
			Longitude: f64(office.Longitude),
		}
	}

	t.Run("success - creates record, queues event, burns the code", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})
		deps.clock.Advance(3 * time.Minute) // exactly at expiry is still valid

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(nil, gorm.ErrRecordNotFound)

		var created *attendance.Attendance
		deps.repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *attendance.Attendance) error {
				created = a
				assert.Equal(t, deps.actor.EmployeeID, a.EmployeeID.String())
				assert.Equal(t, deps.today, a.AttendanceDate)
				assert.True(t, a.ClockIn.Equal(deps.clock.Now()))
				assert.Nil(t, a.ClockOut)
				assert.Equal(t, attendance.StatusPresent, a.Status)
				assert.Equal(t, office.Latitude, a.ClockInLatitude)
				return nil
			})

		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e kafka.OutboxEvent) error {
				assert.Equal(t, events.AttendanceLifecycleTopic, e.Topic)
				assert.Equal(t, events.AttendanceClockedIn, e.EventType)
				assert.Equal(t, "rid-clock-in", e.RequestID)
				assert.Equal(t, kafka.OutboxStatusPending, e.Status)

				var payload events.AttendanceEvent
				require.NoError(t, json.Unmarshal(e.Payload, &payload))
				assert.Equal(t, "asha@example.com", payload.EmployeeEmail)
				assert.Equal(t, "2026-03-02", payload.AttendanceDate)
				return nil
			})

		resp, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))

		require.NoError(t, err)
		assert.False(t, resp.IsLate)
		assert.Equal(t, created.ID.String(), resp.Attendance.ID)
		assert.False(t, deps.pending(otp.KindClockIn))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())

		_, err = deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
	})

	t.Run("late after the cutoff minute", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.clock.Set(time.Date(2026, 3, 2, 9, 1, 0, 0, ist))
		deps.issue(t, otp.KindClockIn, otp.Context{})

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)
		deps.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		resp, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		require.NoError(t, err)
		assert.True(t, resp.IsLate)
	})

	t.Run("code required", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq("  "))
		assert.ErrorIs(t, err, attendanceerrors.ErrCodeRequired)
	})

	t.Run("location required", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, attendance.VerifyClockInRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrLocationRequired)
		assert.True(t, deps.pending(otp.KindClockIn))
	})

	t.Run("no challenge", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
	})

	t.Run("clock-out code does not satisfy clock-in", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &office})

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
		assert.True(t, deps.pending(otp.KindClockOut))
	})

	t.Run("expired", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})
		deps.clock.Advance(3*time.Minute + time.Second)

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrExpired)
		assert.False(t, deps.pending(otp.KindClockIn))
	})

	t.Run("mismatch burns the code", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq("654321"))
		assert.ErrorIs(t, err, attendanceerrors.ErrMismatch)

		_, err = deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
	})

	t.Run("already clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(openRecord(deps.actor.EmployeeID, deps.clock.Now()), nil)

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedIn)
		assert.False(t, deps.pending(otp.KindClockIn))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to already clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)
		deps.repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(&pgconn.PgError{Code: "23505", ConstraintName: "uq_attendance_employee_date"})

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedIn)
		assert.False(t, deps.pending(otp.KindClockIn))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("outbox failure rolls back and keeps the code", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockIn, otp.Context{})

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)
		deps.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("outbox insert failed"))

		_, err := deps.service.VerifyClockIn(ctx, deps.actor, verifyReq(testCode))
		assert.ErrorContains(t, err, "outbox insert failed")
		assert.True(t, deps.pending(otp.KindClockIn))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})
}

func TestAttendanceService_InitiateClockOut(t *testing.T) {
	ctx := context.Background()

	t.Run("success - stores the location with the challenge", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.clock.Set(time.Date(2026, 3, 2, 17, 30, 0, 0, ist))

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(openRecord(deps.actor.EmployeeID, time.Date(2026, 3, 2, 9, 0, 0, 0, ist)), nil)
		deps.mailer.EXPECT().
			Send(gomock.Any(), "asha@example.com", "Your Attendance Clock-out OTP", gomock.Any()).
			Return(nil)

		req := attendance.LocationRequest{Latitude: f64(office.Latitude + 0.0005), Longitude: f64(office.Longitude)}
		_, err := deps.service.InitiateClockOut(ctx, deps.actor, req)
		require.NoError(t, err)

		ch, err := deps.store.Lookup(ctx, otp.KindClockOut, deps.actor.EmployeeID)
		require.NoError(t, err)
		require.NotNil(t, ch.Context.Location)
		assert.Equal(t, office.Latitude+0.0005, ch.Context.Location.Latitude)
	})

	t.Run("not clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)

		_, err := deps.service.InitiateClockOut(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrNotClockedIn)
	})

	t.Run("already clocked out", func(t *testing.T) {
		deps := setupServiceTest(t)
		row := openRecord(deps.actor.EmployeeID, time.Date(2026, 3, 2, 9, 0, 0, 0, ist))
		require.NoError(t, row.CloseAt(time.Date(2026, 3, 2, 17, 0, 0, 0, ist), office))

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(row, nil)

		_, err := deps.service.InitiateClockOut(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedOut)
	})

	t.Run("out of range", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.InitiateClockOut(ctx, deps.actor, farAway())
		assert.ErrorIs(t, err, attendanceerrors.ErrOutOfRange)
	})

	t.Run("mail failure rolls back the challenge", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(openRecord(deps.actor.EmployeeID, deps.clock.Now()), nil)
		deps.mailer.EXPECT().
			Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(context.DeadlineExceeded)

		_, err := deps.service.InitiateClockOut(ctx, deps.actor, atOffice())
		assert.ErrorIs(t, err, attendanceerrors.ErrMailFailed)
		assert.False(t, deps.pending(otp.KindClockOut))
	})
}

func TestAttendanceService_VerifyClockOut(t *testing.T) {
	ctx := context.Background()
	clockIn := time.Date(2026, 3, 2, 9, 0, 0, 0, ist)
	exitPoint := geofence.Point{Latitude: office.Latitude + 0.0003, Longitude: office.Longitude}

	t.Run("success - 09:00 to 17:30 is 8.5 hours", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.clock.Set(time.Date(2026, 3, 2, 17, 28, 0, 0, ist))
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &exitPoint})
		deps.clock.Set(time.Date(2026, 3, 2, 17, 30, 0, 0, ist))

		row := openRecord(deps.actor.EmployeeID, clockIn)

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(row, nil)
		deps.repo.EXPECT().
			Update(gomock.Any(), row).
			DoAndReturn(func(_ context.Context, a *attendance.Attendance) error {
				require.NotNil(t, a.ClockOut)
				assert.True(t, a.ClockOut.Equal(deps.clock.Now()))
				assert.Equal(t, exitPoint.Latitude, *a.ClockOutLatitude)
				assert.Equal(t, exitPoint.Longitude, *a.ClockOutLongitude)
				return nil
			})
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e kafka.OutboxEvent) error {
				assert.Equal(t, events.AttendanceClockedOut, e.EventType)
				var payload events.AttendanceEvent
				require.NoError(t, json.Unmarshal(e.Payload, &payload))
				require.NotNil(t, payload.TotalHoursWorked)
				assert.Equal(t, 8.5, *payload.TotalHoursWorked)
				return nil
			})

		resp, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})

		require.NoError(t, err)
		assert.Equal(t, 8.5, resp.TotalHoursWorked)
		assert.NotNil(t, resp.Attendance.ClockOut)
		assert.False(t, deps.pending(otp.KindClockOut))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("code required", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{})
		assert.ErrorIs(t, err, attendanceerrors.ErrCodeRequired)
	})

	t.Run("no challenge", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
	})

	t.Run("expired", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &exitPoint})
		deps.clock.Advance(4 * time.Minute)

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrExpired)
		assert.False(t, deps.pending(otp.KindClockOut))
	})

	t.Run("mismatch", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &exitPoint})

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: "000000"})
		assert.ErrorIs(t, err, attendanceerrors.ErrMismatch)
		assert.False(t, deps.pending(otp.KindClockOut))
	})

	t.Run("not clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &exitPoint})

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, gorm.ErrRecordNotFound)

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrNotClockedIn)
		assert.False(t, deps.pending(otp.KindClockOut))
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("already clocked out", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{Location: &exitPoint})
		row := openRecord(deps.actor.EmployeeID, clockIn)
		require.NoError(t, row.CloseAt(clockIn.Add(8*time.Hour), office))

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(row, nil)

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedOut)
	})

	t.Run("challenge without a location is rejected", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.issue(t, otp.KindClockOut, otp.Context{})

		_, err := deps.service.VerifyClockOut(ctx, deps.actor, attendance.VerifyClockOutRequest{OTP: testCode})
		assert.ErrorIs(t, err, attendanceerrors.ErrNoChallenge)
		assert.False(t, deps.pending(otp.KindClockOut))
	})
}

func TestAttendanceService_GetToday(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), deps.actor.EmployeeID, deps.today).
			Return(nil, gorm.ErrRecordNotFound)

		resp, err := deps.service.GetToday(ctx, deps.actor)
		require.NoError(t, err)
		assert.Equal(t, string(attendance.StateNoRecord), resp.State)
		assert.Nil(t, resp.Attendance)
	})

	t.Run("clocked in", func(t *testing.T) {
		deps := setupServiceTest(t)
		row := openRecord(deps.actor.EmployeeID, deps.clock.Now())
		deps.repo.EXPECT().
			FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(row, nil)

		resp, err := deps.service.GetToday(ctx, deps.actor)
		require.NoError(t, err)
		assert.Equal(t, string(attendance.StateClockedIn), resp.State)
		require.NotNil(t, resp.Attendance)
		assert.Equal(t, row.ID.String(), resp.Attendance.ID)
	})
}

func TestAttendanceService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("employee only sees own records", func(t *testing.T) {
		deps := setupServiceTest(t)
		other := uuid.New().String()

		deps.repo.EXPECT().
			FindAll(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f attendance.ListFilter) ([]attendance.Attendance, error) {
				assert.Equal(t, deps.actor.EmployeeID, f.EmployeeID)
				return []attendance.Attendance{*openRecord(deps.actor.EmployeeID, deps.clock.Now())}, nil
			})

		rows, err := deps.service.List(ctx, deps.actor, false, attendance.ListQuery{EmployeeID: other})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("admin filters by employee and range", func(t *testing.T) {
		deps := setupServiceTest(t)
		target := uuid.New().String()

		deps.repo.EXPECT().
			FindAll(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f attendance.ListFilter) ([]attendance.Attendance, error) {
				assert.Equal(t, target, f.EmployeeID)
				require.NotNil(t, f.StartDate)
				require.NotNil(t, f.EndDate)
				assert.Equal(t, "2026-03-01", f.StartDate.Format("2006-01-02"))
				assert.Equal(t, "2026-03-31", f.EndDate.Format("2006-01-02"))
				assert.Nil(t, f.Date)
				return nil, nil
			})

		rows, err := deps.service.List(ctx, deps.actor, true, attendance.ListQuery{
			EmployeeID: target,
			StartDate:  "2026-03-01",
			EndDate:    "2026-03-31",
		})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("admin without employee filter sees everyone", func(t *testing.T) {
		deps := setupServiceTest(t)

		deps.repo.EXPECT().
			FindAll(gomock.Any(), attendance.ListFilter{}).
			Return(nil, nil)

		_, err := deps.service.List(ctx, deps.actor, true, attendance.ListQuery{})
		assert.NoError(t, err)
	})

	t.Run("invalid dates", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.List(ctx, deps.actor, true, attendance.ListQuery{Date: "02/03/2026"})
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidDateFilter)

		_, err = deps.service.List(ctx, deps.actor, true, attendance.ListQuery{StartDate: "2026-03-05", EndDate: "2026-03-01"})
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidDateFilter)
	})

	t.Run("invalid employee filter", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.List(ctx, deps.actor, true, attendance.ListQuery{EmployeeID: "bob"})
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidEmployeeID)
	})
}

// uniqueRepo enforces one record per (employee, day) the way the database
// constraint does.
type uniqueRepo struct {
	mu   sync.Mutex
	rows map[string]attendance.Attendance
}

func (r *uniqueRepo) key(employeeID string, day time.Time) string {
	return employeeID + "|" + day.Format("2006-01-02")
}

func (r *uniqueRepo) WithTx(*sql.Tx) attendance.Repository { return r }

func (r *uniqueRepo) Create(_ context.Context, a *attendance.Attendance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(a.EmployeeID.String(), a.AttendanceDate)
	if _, ok := r.rows[k]; ok {
		return &pgconn.PgError{Code: "23505", ConstraintName: "uq_attendance_employee_date"}
	}
	r.rows[k] = *a
	return nil
}

func (r *uniqueRepo) FindByEmployeeAndDate(_ context.Context, employeeID string, day time.Time) (*attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[r.key(employeeID, day)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *uniqueRepo) FindAll(context.Context, attendance.ListFilter) ([]attendance.Attendance, error) {
	return nil, nil
}

func (r *uniqueRepo) Update(context.Context, *attendance.Attendance) error { return nil }

func TestAttendanceService_ConcurrentVerifyClockIn(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.MatchExpectationsInOrder(false)
	sqlMock.ExpectBegin()
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()
	sqlMock.ExpectRollback()

	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 55, 0, 0, ist)}
	store := otp.NewMemoryStore(clock.Now)
	repo := &uniqueRepo{rows: map[string]attendance.Attendance{}}
	actor := attendance.Actor{EmployeeID: uuid.New().String(), Email: "asha@example.com"}

	svc := attendance.NewService(attendance.ServiceDeps{
		DB:     db,
		Repo:   repo,
		Store:  store,
		Policy: testPolicy(),
		Now:    clock.Now,
	}, zap.NewNop())

	_, err = store.Issue(context.Background(), otp.KindClockIn, actor.EmployeeID, testCode, 3*time.Minute, otp.Context{})
	require.NoError(t, err)

	req := attendance.VerifyClockInRequest{OTP: testCode, Latitude: f64(office.Latitude), Longitude: f64(office.Longitude)}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.VerifyClockIn(context.Background(), actor, req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, attendanceerrors.ErrAlreadyClockedIn) || errors.Is(err, attendanceerrors.ErrNoChallenge),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, repo.rows, 1)
}

func TestAttendanceService_MailBody(t *testing.T) {
	deps := setupServiceTest(t)
	deps.actor.Name = ""

	deps.repo.EXPECT().
		FindByEmployeeAndDate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, gorm.ErrRecordNotFound)
	deps.mailer.EXPECT().
		Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, body string) error {
			assert.True(t, strings.HasPrefix(body, "Hello asha@example.com,"))
			assert.Contains(t, body, "expire in 3 minutes")
			return nil
		})

	_, err := deps.service.InitiateClockIn(context.Background(), deps.actor, atOffice())
	assert.NoError(t, err)
}
