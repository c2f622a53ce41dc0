package attendance

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// ListFilter narrows history queries. A complete range wins over Date;
// Date wins over a lone bound. Range bounds are inclusive.
type ListFilter struct {
	EmployeeID string
	Date       *time.Time
	StartDate  *time.Time
	EndDate    *time.Time
}

//go:generate mockgen -source=attendance_repo.go -destination=mock/attendance_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, a *Attendance) error
	FindByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Attendance, error)
	FindAll(ctx context.Context, filter ListFilter) ([]Attendance, error)
	Update(ctx context.Context, a *Attendance) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx runs subsequent calls on tx, which the service opened on the same
// *sql.DB that backs the gorm handle.
func (r *repository) WithTx(tx *sql.Tx) Repository {
	db := r.db.Session(&gorm.Session{NewDB: true, Context: context.Background()})
	db.Statement.ConnPool = tx
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *Attendance) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *repository) FindByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Attendance, error) {
	var a Attendance
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Where("attendance_date = ?", date.Format(dateLayout)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) FindAll(ctx context.Context, filter ListFilter) ([]Attendance, error) {
	q := r.db.WithContext(ctx).Model(&Attendance{})
	if filter.EmployeeID != "" {
		q = q.Where("employee_id = ?", filter.EmployeeID)
	}
	switch {
	case filter.StartDate != nil && filter.EndDate != nil:
		q = q.Where("attendance_date >= ?", filter.StartDate.Format(dateLayout)).
			Where("attendance_date <= ?", filter.EndDate.Format(dateLayout))
	case filter.Date != nil:
		q = q.Where("attendance_date = ?", filter.Date.Format(dateLayout))
	default:
		if filter.StartDate != nil {
			q = q.Where("attendance_date >= ?", filter.StartDate.Format(dateLayout))
		}
		if filter.EndDate != nil {
			q = q.Where("attendance_date <= ?", filter.EndDate.Format(dateLayout))
		}
	}

	var rows []Attendance
	err := q.Order("attendance_date DESC, clock_in DESC").Find(&rows).Error
	return rows, err
}

// Update writes the clock-out columns only; clock-in fields are immutable.
func (r *repository) Update(ctx context.Context, a *Attendance) error {
	res := r.db.WithContext(ctx).
		Model(&Attendance{}).
		Where("id = ?", a.ID).
		Where("clock_out IS NULL").
		Updates(map[string]any{
			"clock_out":           a.ClockOut,
			"total_hours_worked":  a.TotalHoursWorked,
			"clock_out_latitude":  a.ClockOutLatitude,
			"clock_out_longitude": a.ClockOutLongitude,
			"updated_at":          gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errClockOutRaced
	}
	return nil
}
