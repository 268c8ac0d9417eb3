package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestScheduleSessionRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewScheduleSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.ScheduleSession{
		ScheduleID: "sch-1",
		SubjectID:  "subj-1",
		TeacherID:  "teacher-1",
		TimeSlotID: "slot-1",
		DayOfWeek:  1,
		StartTime:  "08:00",
		EndTime:    "08:45",
	}
	err := repo.Insert(context.Background(), nil, session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSessionRepositoryInsertDoubleBooking(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewScheduleSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_sessions")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_sessions_teacher_slot"})

	session := &models.ScheduleSession{
		ScheduleID: "sch-1",
		SubjectID:  "subj-1",
		TeacherID:  "teacher-1",
		TimeSlotID: "slot-1",
		DayOfWeek:  1,
	}
	err := repo.Insert(context.Background(), nil, session)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSessionRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewScheduleSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_sessions")).
		WithArgs("sess-missing", "cancelled", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "sess-missing", models.SessionStatusCancelled, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSessionRepositoryListBySchedule(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewScheduleSessionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "schedule_id", "teacher_id", "day_of_week", "period_number", "start_time", "end_time", "status"}).
		AddRow("sess-1", "sch-1", "teacher-1", 1, 1, "08:00", "08:45", "scheduled").
		AddRow("sess-2", "sch-1", "teacher-2", 1, 2, "08:45", "09:30", "scheduled")
	mock.ExpectQuery("SELECT .+ FROM schedule_sessions").
		WithArgs("sch-1").
		WillReturnRows(rows)

	sessions, err := repo.ListBySchedule(context.Background(), "sch-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
