package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newTeacherSubjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTeacherSubjectRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newTeacherSubjectRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	mock.ExpectExec("INSERT INTO teacher_subjects .+ ON CONFLICT \\(teacher_id, subject_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ts := &models.TeacherSubject{
		TeacherID:           "teacher-1",
		SubjectID:           "subj-1",
		GradeLevels:         pq.Int64Array{10, 11},
		SpecializationLevel: models.SpecializationAdvanced,
		MaxHoursPerWeek:     24,
		IsActive:            true,
	}
	err := repo.Upsert(context.Background(), ts)
	require.NoError(t, err)
	assert.NotEmpty(t, ts.ID)
	assert.False(t, ts.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherSubjectRepositoryListQualified(t *testing.T) {
	db, mock, cleanup := newTeacherSubjectRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "teacher_id", "subject_id", "grade_levels", "specialization_level",
		"performance_rating", "years_experience", "is_active", "created_at", "updated_at", "teacher_name",
	}).
		AddRow("ts-1", "teacher-1", "subj-1", []byte("{10,11}"), "expert", 4.6, 12, true, now, now, "Siti Rahma").
		AddRow("ts-2", "teacher-2", "subj-1", []byte("{10}"), "advanced", 4.1, 7, true, now, now, "Budi Santoso")

	mock.ExpectQuery("SELECT .+ FROM teacher_subjects ts\\s+JOIN teachers t ON t.id = ts.teacher_id").
		WithArgs("subj-1", 10).
		WillReturnRows(rows)

	qualified, err := repo.ListQualified(context.Background(), "subj-1", 10)
	require.NoError(t, err)
	require.Len(t, qualified, 2)
	assert.Equal(t, "Siti Rahma", qualified[0].TeacherName)
	assert.Equal(t, pq.Int64Array{10, 11}, qualified[0].GradeLevels)
	assert.Equal(t, models.SpecializationExpert, qualified[0].SpecializationLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
