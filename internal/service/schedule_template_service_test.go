package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type templateRepoMock struct {
	templates  map[string]*models.ScheduleTemplate
	maxVersion int
	nextID     int
}

func newTemplateRepoMock(seed ...*models.ScheduleTemplate) *templateRepoMock {
	stub := &templateRepoMock{templates: map[string]*models.ScheduleTemplate{}, nextID: len(seed)}
	for _, template := range seed {
		stub.templates[template.ID] = template
	}
	return stub
}

func (m *templateRepoMock) Create(ctx context.Context, template *models.ScheduleTemplate) error {
	m.nextID++
	template.ID = fmt.Sprintf("tmpl-%d", m.nextID)
	if template.Status == "" {
		template.Status = models.TemplateStatusDraft
	}
	if template.Version == 0 {
		template.Version = 1
	}
	cp := *template
	m.templates[template.ID] = &cp
	return nil
}

func (m *templateRepoMock) FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	template, ok := m.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *template
	return &cp, nil
}

func (m *templateRepoMock) ListByInstitution(ctx context.Context, institutionID string) ([]models.ScheduleTemplate, error) {
	var out []models.ScheduleTemplate
	for _, template := range m.templates {
		if template.InstitutionID == institutionID {
			out = append(out, *template)
		}
	}
	return out, nil
}

func (m *templateRepoMock) UpdateStatus(ctx context.Context, id string, status models.TemplateStatus) error {
	template, ok := m.templates[id]
	if !ok {
		return sql.ErrNoRows
	}
	template.Status = status
	return nil
}

func (m *templateRepoMock) MaxVersionInChain(ctx context.Context, rootID string) (int, error) {
	return m.maxVersion, nil
}

type templateSlotFeedStub struct {
	slots []models.TimeSlot
}

func (m *templateSlotFeedStub) ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.TimeSlot, error) {
	return m.slots, nil
}

type templateQualFeedStub struct {
	qualified map[string][]models.QualifiedTeacher
}

func (m *templateQualFeedStub) ListQualified(ctx context.Context, subjectID string, grade int) ([]models.QualifiedTeacher, error) {
	return m.qualified[subjectID], nil
}

type scheduleCreatorStub struct {
	created     *models.Schedule
	sessions    []dto.AddSessionRequest
	failTeacher string
	nextID      int
}

func (m *scheduleCreatorStub) Create(ctx context.Context, req dto.CreateScheduleRequest, creatorID string) (*models.Schedule, error) {
	m.nextID++
	m.created = &models.Schedule{
		ID:               fmt.Sprintf("sched-%d", m.nextID),
		Name:             req.Name,
		AcademicYearID:   req.AcademicYearID,
		InstitutionID:    req.InstitutionID,
		GradeID:          req.GradeID,
		ScheduleType:     models.ScheduleType(req.ScheduleType),
		Status:           models.ScheduleStatusDraft,
		GenerationMethod: models.GenerationManual,
	}
	return m.created, nil
}

func (m *scheduleCreatorStub) AddSession(ctx context.Context, scheduleID string, req dto.AddSessionRequest, actorID string) (*models.ScheduleSession, error) {
	if req.TeacherID == m.failTeacher {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher cannot take this session")
	}
	for _, existing := range m.sessions {
		if existing.DayOfWeek == req.DayOfWeek && existing.TimeSlotID == req.TimeSlotID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "slot already booked")
		}
	}
	m.sessions = append(m.sessions, req)
	return &models.ScheduleSession{ID: fmt.Sprintf("sess-%d", len(m.sessions)), ScheduleID: scheduleID}, nil
}

func activeTemplateFixture(t *testing.T) *models.ScheduleTemplate {
	t.Helper()
	template := &models.ScheduleTemplate{
		ID:              "tmpl-1",
		InstitutionID:   "inst-1",
		Name:            "Grade 10 Standard Week",
		TemplateType:    models.ScheduleTypeRegular,
		GradeLevelStart: 10,
		GradeLevelEnd:   12,
		PeriodsPerDay:   4,
		WorkingDays:     pq.Int64Array{1, 2, 3, 4, 5},
		Status:          models.TemplateStatusActive,
		Version:         1,
		CreatedBy:       "user-1",
	}
	require.NoError(t, template.SetAllocations([]models.SubjectAllocation{
		{SubjectID: "math", WeeklyHours: 4, PreferredTeacherID: "teacher-1"},
		{SubjectID: "physics", WeeklyHours: 3},
	}))
	return template
}

func generationSlots() []models.TimeSlot {
	var slots []models.TimeSlot
	for i := 1; i <= 4; i++ {
		slots = append(slots, models.TimeSlot{
			ID:               fmt.Sprintf("slot-%d", i),
			Code:             fmt.Sprintf("P%d", i),
			IsActive:         true,
			IsTeachingPeriod: true,
			OrderIndex:       i,
		})
	}
	return slots
}

func TestTemplateServiceCreateStartsInDraft(t *testing.T) {
	repo := newTemplateRepoMock()
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

	template, err := service.Create(context.Background(), dto.CreateTemplateRequest{
		InstitutionID:   "inst-1",
		Name:            "Standard Week",
		TemplateType:    "regular",
		GradeLevelStart: 10,
		GradeLevelEnd:   12,
		Allocations:     []dto.TemplateAllocation{{SubjectID: "math", WeeklyHours: 4}},
		PeriodsPerDay:   8,
		WorkingDays:     []int{1, 2, 3, 4, 5},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TemplateStatusDraft, template.Status)

	allocations, err := template.Allocations()
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "math", allocations[0].SubjectID)
}

func TestTemplateStatusTransitions(t *testing.T) {
	cases := []struct {
		from    models.TemplateStatus
		to      models.TemplateStatus
		allowed bool
	}{
		{models.TemplateStatusDraft, models.TemplateStatusTesting, true},
		{models.TemplateStatusDraft, models.TemplateStatusActive, true},
		{models.TemplateStatusTesting, models.TemplateStatusDraft, true},
		{models.TemplateStatusActive, models.TemplateStatusDeprecated, true},
		{models.TemplateStatusDeprecated, models.TemplateStatusArchived, true},
		{models.TemplateStatusActive, models.TemplateStatusDraft, false},
		{models.TemplateStatusArchived, models.TemplateStatusActive, false},
	}
	for _, tc := range cases {
		repo := newTemplateRepoMock(&models.ScheduleTemplate{ID: "tmpl-1", Status: tc.from})
		service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

		_, err := service.UpdateStatus(context.Background(), "tmpl-1", tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.Error(t, err, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestTemplateServiceForkBumpsVersion(t *testing.T) {
	source := activeTemplateFixture(t)
	repo := newTemplateRepoMock(source)
	repo.maxVersion = 3
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

	fork, err := service.Fork(context.Background(), "tmpl-1", dto.ForkTemplateRequest{Name: "Standard Week v4"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 4, fork.Version)
	assert.Equal(t, models.TemplateStatusDraft, fork.Status)
	require.NotNil(t, fork.ParentTemplateID)
	assert.Equal(t, "tmpl-1", *fork.ParentTemplateID)
	assert.Equal(t, "Standard Week v4", fork.Name)
	assert.Equal(t, source.SubjectAllocations, fork.SubjectAllocations, "allocations carry over unless overridden")
}

func TestTemplateServiceForkKeepsRootAncestor(t *testing.T) {
	root := "tmpl-root"
	child := activeTemplateFixture(t)
	child.ID = "tmpl-2"
	child.ParentTemplateID = &root
	repo := newTemplateRepoMock(child)
	repo.maxVersion = 2
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

	fork, err := service.Fork(context.Background(), "tmpl-2", dto.ForkTemplateRequest{}, "user-2")
	require.NoError(t, err)
	require.NotNil(t, fork.ParentTemplateID)
	assert.Equal(t, root, *fork.ParentTemplateID, "forks of forks chain back to the root")
}

func TestGenerateScheduleRequiresUsableTemplate(t *testing.T) {
	draft := activeTemplateFixture(t)
	draft.Status = models.TemplateStatusDraft
	repo := newTemplateRepoMock(draft)
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

	_, _, err := service.GenerateSchedule(context.Background(), dto.GenerateFromTemplateRequest{
		TemplateID: "tmpl-1", Name: "Generated", AcademicYearID: "ay-1", GradeID: "grade-1", GradeLevel: 10,
	}, "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestGenerateScheduleRejectsUncoveredGrade(t *testing.T) {
	repo := newTemplateRepoMock(activeTemplateFixture(t))
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{}, &templateQualFeedStub{}, &scheduleCreatorStub{}, validator.New(), zap.NewNop())

	_, _, err := service.GenerateSchedule(context.Background(), dto.GenerateFromTemplateRequest{
		TemplateID: "tmpl-1", Name: "Generated", AcademicYearID: "ay-1", GradeID: "grade-1", GradeLevel: 7,
	}, "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGenerateSchedulePlacesAllHours(t *testing.T) {
	repo := newTemplateRepoMock(activeTemplateFixture(t))
	creator := &scheduleCreatorStub{}
	quals := &templateQualFeedStub{qualified: map[string][]models.QualifiedTeacher{
		"math":    {{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-1"}}},
		"physics": {{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-2"}}},
	}}
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{slots: generationSlots()}, quals, creator, validator.New(), zap.NewNop())

	schedule, unplaced, err := service.GenerateSchedule(context.Background(), dto.GenerateFromTemplateRequest{
		TemplateID: "tmpl-1", Name: "Generated 10A", AcademicYearID: "ay-1", GradeID: "grade-1", GradeLevel: 10,
	}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, unplaced)
	assert.Equal(t, "Generated 10A", schedule.Name)
	// 4 math hours + 3 physics hours
	assert.Len(t, creator.sessions, 7)

	mathCount := 0
	for _, session := range creator.sessions {
		if session.SubjectID == "math" {
			assert.Equal(t, "teacher-1", session.TeacherID, "preferred teacher goes first")
			mathCount++
		}
	}
	assert.Equal(t, 4, mathCount)
}

func TestGenerateScheduleReportsUnplaceableSubjects(t *testing.T) {
	repo := newTemplateRepoMock(activeTemplateFixture(t))
	creator := &scheduleCreatorStub{}
	quals := &templateQualFeedStub{qualified: map[string][]models.QualifiedTeacher{
		"math": {{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-1"}}},
		// nobody qualified for physics
	}}
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{slots: generationSlots()}, quals, creator, validator.New(), zap.NewNop())

	schedule, unplaced, err := service.GenerateSchedule(context.Background(), dto.GenerateFromTemplateRequest{
		TemplateID: "tmpl-1", Name: "Generated 10A", AcademicYearID: "ay-1", GradeID: "grade-1", GradeLevel: 10,
	}, "user-1")
	require.NoError(t, err, "placement failures are reported, not fatal")
	assert.NotNil(t, schedule)
	require.Len(t, unplaced, 1)
	assert.Contains(t, unplaced[0], "physics")
	assert.Len(t, creator.sessions, 4, "math still lands")
}

func TestGenerateScheduleSkipsRejectedBookings(t *testing.T) {
	repo := newTemplateRepoMock(activeTemplateFixture(t))
	creator := &scheduleCreatorStub{failTeacher: "teacher-1"}
	quals := &templateQualFeedStub{qualified: map[string][]models.QualifiedTeacher{
		"math": {
			{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-1"}},
			{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-3"}},
		},
		"physics": {{TeacherSubject: models.TeacherSubject{TeacherID: "teacher-2"}}},
	}}
	service := NewScheduleTemplateService(repo, &templateSlotFeedStub{slots: generationSlots()}, quals, creator, validator.New(), zap.NewNop())

	_, unplaced, err := service.GenerateSchedule(context.Background(), dto.GenerateFromTemplateRequest{
		TemplateID: "tmpl-1", Name: "Generated 10A", AcademicYearID: "ay-1", GradeID: "grade-1", GradeLevel: 10,
	}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, unplaced)
	for _, session := range creator.sessions {
		assert.NotEqual(t, "teacher-1", session.TeacherID, "gate rejections fall through to the next ranked teacher")
	}
}
