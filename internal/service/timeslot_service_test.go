package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type slotRepoMock struct {
	existing []models.TimeSlot
	created  []models.TimeSlot
	bulk     []models.TimeSlot
	err      error
}

func (m *slotRepoMock) Create(ctx context.Context, slot *models.TimeSlot) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, *slot)
	return nil
}

func (m *slotRepoMock) BulkCreate(ctx context.Context, tx *sqlx.Tx, slots []models.TimeSlot) error {
	if m.err != nil {
		return m.err
	}
	m.bulk = append(m.bulk, slots...)
	return nil
}

func (m *slotRepoMock) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	for i := range m.existing {
		if m.existing[i].ID == id {
			cp := m.existing[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *slotRepoMock) ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.TimeSlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.existing, nil
}

func (m *slotRepoMock) Deactivate(ctx context.Context, id string) error {
	return m.err
}

func weekdays() pq.Int64Array { return pq.Int64Array{1, 2, 3, 4, 5} }

func TestTimeSlotServiceCreateRejectsOverlap(t *testing.T) {
	repo := &slotRepoMock{existing: []models.TimeSlot{
		{ID: "slot-1", Code: "P1", StartTime: "08:00", EndTime: "08:45", ApplicableDays: weekdays(), IsActive: true},
	}}
	service := NewTimeSlotService(repo, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateTimeSlotRequest{
		InstitutionID:  "inst-1",
		Name:           "Overlapping Period",
		Code:           "PX",
		StartTime:      "08:30",
		EndTime:        "09:15",
		SlotType:       "class",
		ApplicableDays: []int{1, 2},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Details)
	assert.Empty(t, repo.created)
}

func TestTimeSlotServiceCreateAllowsDisjointDays(t *testing.T) {
	repo := &slotRepoMock{existing: []models.TimeSlot{
		{ID: "slot-1", Code: "P1", StartTime: "08:00", EndTime: "08:45", ApplicableDays: weekdays(), IsActive: true},
	}}
	service := NewTimeSlotService(repo, nil, validator.New(), zap.NewNop())

	slot, err := service.Create(context.Background(), dto.CreateTimeSlotRequest{
		InstitutionID:    "inst-1",
		Name:             "Saturday Activity",
		Code:             "ACT1",
		StartTime:        "08:00",
		EndTime:          "09:00",
		SlotType:         "activity",
		ApplicableDays:   []int{6},
		IsTeachingPeriod: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, slot.DurationMinutes)
	assert.True(t, slot.IsActive)
	require.Len(t, repo.created, 1)
}

func TestTimeSlotServiceCreateAllowsMutualConflictOptIn(t *testing.T) {
	repo := &slotRepoMock{existing: []models.TimeSlot{
		{ID: "slot-1", Code: "CLUB", StartTime: "14:00", EndTime: "16:00", ApplicableDays: weekdays(), IsActive: true, AllowConflicts: true},
	}}
	service := NewTimeSlotService(repo, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateTimeSlotRequest{
		InstitutionID:  "inst-1",
		Name:           "Sports Practice",
		Code:           "SPORT",
		StartTime:      "15:00",
		EndTime:        "16:30",
		SlotType:       "activity",
		ApplicableDays: []int{1, 3},
		AllowConflicts: true,
	})
	require.NoError(t, err)
}

func TestTimeSlotServiceCreateRejectsInvertedClock(t *testing.T) {
	service := NewTimeSlotService(&slotRepoMock{}, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateTimeSlotRequest{
		InstitutionID:  "inst-1",
		Name:           "Backwards",
		Code:           "BAD",
		StartTime:      "10:00",
		EndTime:        "09:00",
		SlotType:       "class",
		ApplicableDays: []int{1},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStandardDayGridShape(t *testing.T) {
	grid := standardDayGrid("inst-1")

	require.Len(t, grid, 12)
	assert.Equal(t, "07:30", grid[0].StartTime)
	assert.Equal(t, "15:30", grid[len(grid)-1].EndTime)

	teaching := 0
	for i, slot := range grid {
		assert.Equal(t, i+1, slot.OrderIndex)
		assert.Equal(t, weekdays(), slot.ApplicableDays)
		assert.True(t, slot.IsActive)
		if slot.IsTeachingPeriod {
			teaching++
		}
		if i > 0 {
			// the canonical day is contiguous
			assert.Equal(t, grid[i-1].EndTime, slot.StartTime)
		}
	}
	assert.Equal(t, 8, teaching)
}

func TestStandardDayGridDoesNotOverlapItself(t *testing.T) {
	grid := standardDayGrid("inst-1")
	for i := range grid {
		for j := i + 1; j < len(grid); j++ {
			assert.False(t, grid[i].Overlaps(&grid[j]),
				"%s overlaps %s", grid[i].Code, grid[j].Code)
		}
	}
}

func TestTimeSlotServiceGetNotFound(t *testing.T) {
	service := NewTimeSlotService(&slotRepoMock{}, nil, validator.New(), zap.NewNop())

	_, err := service.Get(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestTimeSlotServiceListRequiresInstitution(t *testing.T) {
	service := NewTimeSlotService(&slotRepoMock{}, nil, validator.New(), zap.NewNop())

	_, err := service.List(context.Background(), "")
	require.Error(t, err)
}
