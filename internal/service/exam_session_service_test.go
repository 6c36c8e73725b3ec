package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/repository"
)

// ─── In-memory fakes ────────────────────────────────────────────────

// memStore backs all five store interfaces for unit tests. Absence is
// signaled with pgx.ErrNoRows, matching the real repositories.
type memStore struct {
	exam            *model.MockExam
	sections        []model.ExamSection
	questions       map[uuid.UUID]*model.Question
	attempts        map[uuid.UUID]*model.ExamAttempt
	sectionAttempts map[string]*model.SectionAttempt
	answers         map[string]*model.UserAnswer

	// raceOnCreate makes Create behave as if a concurrent request won the
	// insert: an attempt row appears but the caller gets pgx.ErrNoRows.
	raceOnCreate bool

	now func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		questions:       map[uuid.UUID]*model.Question{},
		attempts:        map[uuid.UUID]*model.ExamAttempt{},
		sectionAttempts: map[string]*model.SectionAttempt{},
		answers:         map[string]*model.UserAnswer{},
		now:             now,
	}
}

func saKey(attemptID, sectionID uuid.UUID) string {
	return attemptID.String() + "/" + sectionID.String()
}

func (m *memStore) GetByID(_ context.Context, examID uuid.UUID) (*model.MockExam, error) {
	if m.exam == nil || m.exam.ID != examID || !m.exam.IsActive {
		return nil, pgx.ErrNoRows
	}
	e := *m.exam
	return &e, nil
}

func (m *memStore) ListActive(_ context.Context) ([]repository.ExamSummary, error) {
	if m.exam == nil {
		return nil, nil
	}
	return []repository.ExamSummary{{MockExam: *m.exam}}, nil
}

func (m *memStore) ListSections(_ context.Context, _ uuid.UUID, activeOnly bool) ([]model.ExamSection, error) {
	var out []model.ExamSection
	for _, s := range m.sections {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetSection(_ context.Context, sectionID uuid.UUID) (*model.ExamSection, error) {
	for _, s := range m.sections {
		if s.ID == sectionID {
			sec := s
			return &sec, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) GetConfig(_ context.Context) (*model.ExamConfig, error) {
	return model.DefaultExamConfig(), nil
}

func (m *memStore) ListBySection(_ context.Context, sectionID uuid.UUID, activeOnly bool) ([]model.Question, error) {
	var out []model.Question
	for _, q := range m.questions {
		if q.SectionID != sectionID {
			continue
		}
		if activeOnly && !q.IsActive {
			continue
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	q, ok := m.questions[questionID]
	if !ok || !q.IsActive {
		return nil, pgx.ErrNoRows
	}
	qq := *q
	return &qq, nil
}

func (m *memStore) FindActive(_ context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	for _, a := range m.attempts {
		if a.UserID == userID && a.ExamID == examID && a.Status.IsActive() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) FindActiveByUser(_ context.Context, userID int) (*model.ExamAttempt, error) {
	for _, a := range m.attempts {
		if a.UserID == userID && a.Status == model.AttemptStatusInProgress {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) GetAttempt(_ context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, a *model.ExamAttempt) error {
	for _, existing := range m.attempts {
		if existing.UserID == a.UserID && existing.ExamID == a.ExamID && existing.Status.IsActive() {
			return pgx.ErrNoRows
		}
	}
	if m.raceOnCreate {
		winner := &model.ExamAttempt{
			ID:        uuid.New(),
			UserID:    a.UserID,
			ExamID:    a.ExamID,
			Status:    model.AttemptStatusNotStarted,
			CreatedAt: m.now(),
		}
		m.attempts[winner.ID] = winner
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	a.Status = model.AttemptStatusNotStarted
	a.CreatedAt = m.now()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memStore) Save(_ context.Context, a *model.ExamAttempt) error {
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memStore) FindLatestFinished(_ context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	var latest *model.ExamAttempt
	for _, a := range m.attempts {
		if a.UserID != userID || a.ExamID != examID || a.Status.IsActive() || a.Status == model.AttemptStatusAbandoned {
			continue
		}
		if latest == nil || (a.EndTime != nil && latest.EndTime != nil && a.EndTime.After(*latest.EndTime)) {
			cp := *a
			latest = &cp
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *memStore) Upsert(_ context.Context, attemptID, sectionID uuid.UUID, maxPossibleScore float64) (*model.SectionAttempt, error) {
	key := saKey(attemptID, sectionID)
	if sa, ok := m.sectionAttempts[key]; ok {
		cp := *sa
		return &cp, nil
	}
	start := m.now()
	sa := &model.SectionAttempt{
		ID:               uuid.New(),
		AttemptID:        attemptID,
		SectionID:        sectionID,
		StartTime:        &start,
		MaxPossibleScore: maxPossibleScore,
	}
	m.sectionAttempts[key] = sa
	cp := *sa
	return &cp, nil
}

func (m *memStore) GetByAttemptAndSection(_ context.Context, attemptID, sectionID uuid.UUID) (*model.SectionAttempt, error) {
	if sa, ok := m.sectionAttempts[saKey(attemptID, sectionID)]; ok {
		cp := *sa
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error) {
	nameBySection := map[uuid.UUID]string{}
	for _, s := range m.sections {
		nameBySection[s.ID] = s.Name
	}
	var out []model.SectionAttempt
	for _, sa := range m.sectionAttempts {
		if sa.AttemptID == attemptID {
			out = append(out, *sa)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return nameBySection[out[i].SectionID] < nameBySection[out[j].SectionID]
	})
	return out, nil
}

func (m *memStore) CompletedSectionIDs(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	for _, sa := range m.sectionAttempts {
		if sa.AttemptID == attemptID && sa.IsCompleted {
			out[sa.SectionID] = true
		}
	}
	return out, nil
}

func (m *memStore) SaveSectionAttempt(ctx context.Context, sa *model.SectionAttempt) error {
	cp := *sa
	m.sectionAttempts[saKey(sa.AttemptID, sa.SectionID)] = &cp
	return nil
}

func (m *memStore) SetQuestionIndex(_ context.Context, sectionAttemptID uuid.UUID, index int) error {
	for _, sa := range m.sectionAttempts {
		if sa.ID == sectionAttemptID && !sa.IsCompleted {
			sa.CurrentQuestionIndex = index
		}
	}
	return nil
}

func (m *memStore) UpsertAnswer(ctx context.Context, sectionAttemptID, questionID uuid.UUID, selectedOptionID *uuid.UUID, isCorrect *bool, pointsEarned float64) (*model.UserAnswer, error) {
	key := sectionAttemptID.String() + "/" + questionID.String()
	a, ok := m.answers[key]
	if !ok {
		a = &model.UserAnswer{ID: uuid.New(), SectionAttemptID: sectionAttemptID, QuestionID: questionID}
		m.answers[key] = a
	}
	a.SelectedOptionID = selectedOptionID
	a.IsCorrect = isCorrect
	a.PointsEarned = pointsEarned
	a.AnsweredAt = m.now()
	cp := *a
	return &cp, nil
}

func (m *memStore) ListBySectionAttempt(_ context.Context, sectionAttemptID uuid.UUID) ([]model.UserAnswer, error) {
	var out []model.UserAnswer
	for _, a := range m.answers {
		if a.SectionAttemptID == sectionAttemptID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) CountBySectionAttempt(_ context.Context, sectionAttemptID uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.answers {
		if a.SectionAttemptID == sectionAttemptID && a.SelectedOptionID != nil {
			n++
		}
	}
	return n, nil
}

// Separate adapters so method names can match the store interfaces exactly.

type questionStoreAdapter struct{ *memStore }

func (a questionStoreAdapter) GetByID(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	return a.memStore.GetQuestion(ctx, questionID)
}

type attemptStoreAdapter struct{ *memStore }

func (a attemptStoreAdapter) GetByID(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	return a.memStore.GetAttempt(ctx, attemptID)
}

type sectionAttemptStoreAdapter struct{ *memStore }

func (a sectionAttemptStoreAdapter) Save(ctx context.Context, sa *model.SectionAttempt) error {
	return a.memStore.SaveSectionAttempt(ctx, sa)
}

type answerStoreAdapter struct{ *memStore }

func (a answerStoreAdapter) Upsert(ctx context.Context, sectionAttemptID, questionID uuid.UUID, selectedOptionID *uuid.UUID, isCorrect *bool, pointsEarned float64) (*model.UserAnswer, error) {
	return a.memStore.UpsertAnswer(ctx, sectionAttemptID, questionID, selectedOptionID, isCorrect, pointsEarned)
}

// fakeCache implements SessionCache in memory.
type fakeCache struct {
	locks         map[uuid.UUID]bool
	sectionStarts map[string]time.Time
	activity      map[uuid.UUID]time.Time
	touchErr      error
	lockHeld      bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		locks:         map[uuid.UUID]bool{},
		sectionStarts: map[string]time.Time{},
		activity:      map[uuid.UUID]time.Time{},
	}
}

func (c *fakeCache) AcquireAttemptLock(_ context.Context, attemptID uuid.UUID) (bool, error) {
	if c.lockHeld || c.locks[attemptID] {
		return false, nil
	}
	c.locks[attemptID] = true
	return true, nil
}

func (c *fakeCache) ReleaseAttemptLock(_ context.Context, attemptID uuid.UUID) {
	delete(c.locks, attemptID)
}

func (c *fakeCache) CacheSectionStart(_ context.Context, attemptID, sectionID uuid.UUID, start time.Time) {
	c.sectionStarts[saKey(attemptID, sectionID)] = start
}

func (c *fakeCache) SectionStart(_ context.Context, attemptID, sectionID uuid.UUID) (time.Time, bool) {
	t, ok := c.sectionStarts[saKey(attemptID, sectionID)]
	return t, ok
}

func (c *fakeCache) TouchActivity(_ context.Context, attemptID uuid.UUID, at time.Time) error {
	if c.touchErr != nil {
		return c.touchErr
	}
	c.activity[attemptID] = at
	return nil
}

func (c *fakeCache) LastActivity(_ context.Context, attemptID uuid.UUID) (time.Time, bool) {
	t, ok := c.activity[attemptID]
	return t, ok
}

// ─── Fixture ────────────────────────────────────────────────────────

type fixture struct {
	svc   *ExamSessionService
	store *memStore
	cache *fakeCache
	clock *fakeClock

	examID     uuid.UUID
	sectionA   model.ExamSection
	sectionB   model.ExamSection
	q1         *model.Question // section A, 2 pts, 0.5 negative
	q2         *model.Question // section A, 2 pts, 0.5 negative
	qB         *model.Question // section B, 2 pts
	q1Correct  uuid.UUID
	q1Wrong    uuid.UUID
	q2Correct  uuid.UUID
	qBCorrect  uuid.UUID
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func makeQuestion(sectionID uuid.UUID, createdAt time.Time) (*model.Question, uuid.UUID, uuid.UUID) {
	q := &model.Question{
		ID:             uuid.New(),
		SectionID:      sectionID,
		QuestionText:   "placeholder",
		Difficulty:     model.DifficultyMedium,
		Points:         2,
		NegativePoints: 0.5,
		IsActive:       true,
		CreatedAt:      createdAt,
	}
	correct := model.QuestionOption{ID: uuid.New(), QuestionID: q.ID, OptionLetter: "A", OptionText: "right", IsCorrect: true}
	wrong := model.QuestionOption{ID: uuid.New(), QuestionID: q.ID, OptionLetter: "B", OptionText: "wrong"}
	q.Options = []model.QuestionOption{correct, wrong}
	return q, correct.ID, wrong.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	cache := newFakeCache()

	f := &fixture{store: store, cache: cache, clock: clock, examID: uuid.New()}

	store.exam = &model.MockExam{ID: f.examID, Name: "UAS Prep Mock 1", IsActive: true}

	f.sectionA = model.ExamSection{
		ID: uuid.New(), Name: "a_quant", DisplayName: "Quantitative Aptitude",
		DurationMinutes: 30, MaxScore: 10, MinPassScore: 2,
		HasNegativeMarking: true, IsActive: true,
	}
	f.sectionB = model.ExamSection{
		ID: uuid.New(), Name: "b_verbal", DisplayName: "Verbal Reasoning",
		DurationMinutes: 20, MaxScore: 10, MinPassScore: 2, IsActive: true,
	}
	store.sections = []model.ExamSection{f.sectionB, f.sectionA} // unsorted on purpose

	f.q1, f.q1Correct, f.q1Wrong = makeQuestion(f.sectionA.ID, clock.t)
	f.q2, f.q2Correct, _ = makeQuestion(f.sectionA.ID, clock.t.Add(time.Second))
	f.qB, f.qBCorrect, _ = makeQuestion(f.sectionB.ID, clock.t)
	store.questions[f.q1.ID] = f.q1
	store.questions[f.q2.ID] = f.q2
	store.questions[f.qB.ID] = f.qB

	svc := NewExamSessionService(
		store,
		questionStoreAdapter{store},
		attemptStoreAdapter{store},
		sectionAttemptStoreAdapter{store},
		answerStoreAdapter{store},
		cache,
		time.Hour,
		zerolog.Nop(),
	)
	svc.now = clock.Now
	f.svc = svc
	return f
}

const userID = 7

// ─── Tests ──────────────────────────────────────────────────────────

func TestEnterExamStartsFirstSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusInProgress, state.Attempt.Status)
	assert.NotNil(t, state.Attempt.StartTime)
	// Sections progress by short name, not insertion order.
	assert.Equal(t, f.sectionA.ID, state.Section.ID)
	assert.Equal(t, 30*60, state.TimeRemaining)
	require.NotNil(t, state.SectionAttempt.StartTime)
	assert.Equal(t, 10.0, state.SectionAttempt.MaxPossibleScore)

	_, ok := f.cache.SectionStart(ctx, state.Attempt.ID, f.sectionA.ID)
	assert.True(t, ok, "section start should be cached")
}

func TestEnterExamIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	second, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Len(t, f.store.attempts, 1)
	// The section clock keeps running across re-entries.
	assert.Equal(t, 25*60, second.TimeRemaining)
}

func TestEnterExamConcurrentCreateReusesWinner(t *testing.T) {
	f := newFixture(t)
	f.store.raceOnCreate = true
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Len(t, f.store.attempts, 1)
	assert.Equal(t, model.AttemptStatusInProgress, state.Attempt.Status)
}

func TestEnterExamUnknownExam(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnterExam(context.Background(), userID, uuid.New())
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestEnterExamBusyAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.cache.lockHeld = true
	_, err = f.svc.EnterExam(ctx, userID, f.examID)
	assert.ErrorIs(t, err, ErrAttemptBusy)
}

func TestSaveAnswerDerivesScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	correct, err := f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)
	require.NotNil(t, correct.IsCorrect)
	assert.True(t, *correct.IsCorrect)
	assert.Equal(t, 2.0, correct.PointsEarned)

	// Changing the selection re-derives, it does not accumulate.
	wrong, err := f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Wrong)
	require.NoError(t, err)
	require.NotNil(t, wrong.IsCorrect)
	assert.False(t, *wrong.IsCorrect)
	assert.Equal(t, -0.5, wrong.PointsEarned)
	assert.Len(t, f.store.answers, 1)
}

func TestSaveAnswerRequiresActiveAttempt(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SaveAnswer(context.Background(), userID, f.q1.ID, f.q1Correct)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
}

func TestSaveAnswerForeignOptionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.qBCorrect)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestSubmitSectionScoresAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q2.ID, f.q1Wrong) // wrong option of q1 shape
	require.Error(t, err, "option from another question must not attach")

	result, err := f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.False(t, result.Finished)
	require.NotNil(t, result.NextSection)
	assert.Equal(t, f.sectionB.ID, result.NextSection.ID)

	sa, err := f.store.GetByAttemptAndSection(ctx, state.Attempt.ID, f.sectionA.ID)
	require.NoError(t, err)
	assert.True(t, sa.IsCompleted)
	require.NotNil(t, sa.Score)
	assert.Equal(t, 2.0, *sa.Score)
	assert.Equal(t, 1, sa.QuestionsAnswered)
	assert.Equal(t, 1, sa.QuestionsCorrect)
}

func TestDoubleSubmitDoesNotRescoreOrSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	first, err := f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)
	require.NotNil(t, first.NextSection)
	require.Equal(t, f.sectionB.ID, first.NextSection.ID)

	// A redundant submit must neither advance past the section that followed
	// nor touch the recorded score.
	second, err := f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)
	assert.False(t, second.Finished)
	require.NotNil(t, second.NextSection)
	assert.Equal(t, f.sectionB.ID, second.NextSection.ID)

	sa, err := f.store.GetByAttemptAndSection(ctx, state.Attempt.ID, f.sectionA.ID)
	require.NoError(t, err)
	require.NotNil(t, sa.Score)
	assert.Equal(t, 2.0, *sa.Score)
	assert.Equal(t, 1, sa.QuestionsAnswered)
}

func TestSubmitLastSectionFinishesExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	first, err := f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)
	require.False(t, first.Finished)

	// Enter the second section and answer its question.
	_, err = f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.qB.ID, f.qBCorrect)
	require.NoError(t, err)

	final, err := f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.True(t, final.Finished)
	assert.Equal(t, model.AttemptStatusCompleted, final.Attempt.Status)
	require.NotNil(t, final.Attempt.TotalScore)
	assert.Equal(t, 4.0, *final.Attempt.TotalScore)
	require.NotNil(t, final.Attempt.PercentageScore)
	assert.InDelta(t, 20.0, *final.Attempt.PercentageScore, 0.001)
	require.NotNil(t, final.Attempt.Passed)
	assert.True(t, *final.Attempt.Passed)

	// A finished attempt cannot be submitted again.
	_, err = f.svc.SubmitSection(ctx, userID, f.examID)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
}

func TestSubmitExamAutoSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Wrong)
	require.NoError(t, err)

	result, err := f.svc.SubmitExam(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.True(t, result.Finished)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, result.Attempt.Status)
	require.NotNil(t, result.Attempt.TotalScore)
	// Single wrong answer with negative marking floors the section at zero.
	assert.Equal(t, 0.0, *result.Attempt.TotalScore)
	require.NotNil(t, result.Attempt.Passed)
	assert.False(t, *result.Attempt.Passed)
}

func TestAutoSaveBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	idx := 3
	req := &model.AutoSaveRequest{
		Answers: []model.AutoSaveAnswer{
			{QuestionID: f.q1.ID, OptionID: f.q1Correct},
			{QuestionID: f.q2.ID, OptionID: f.q2Correct},
			{QuestionID: uuid.New(), OptionID: uuid.New()}, // stale, skipped
			{QuestionID: f.qB.ID, OptionID: f.qBCorrect},   // other section, skipped
		},
		CurrentQuestionIndex: &idx,
	}

	result, err := f.svc.AutoSave(ctx, userID, f.examID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SavedCount)

	sa, err := f.store.GetByAttemptAndSection(ctx, state.Attempt.ID, f.sectionA.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sa.CurrentQuestionIndex)

	_, ok := f.cache.LastActivity(ctx, state.Attempt.ID)
	assert.True(t, ok, "activity should be touched")
}

func TestAutoSaveFallsBackWhenCacheDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.cache.touchErr = context.DeadlineExceeded
	f.clock.Advance(time.Minute)

	_, err = f.svc.AutoSave(ctx, userID, f.examID, &model.AutoSaveRequest{})
	require.NoError(t, err)

	saved := f.store.attempts[state.Attempt.ID]
	require.NotNil(t, saved.LastActivity)
	assert.Equal(t, f.clock.Now(), *saved.LastActivity)
}

func TestCheckTimeRemainingHealsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	// Simulate a Redis flush.
	f.cache.sectionStarts = map[string]time.Time{}

	f.clock.Advance(10 * time.Minute)
	status, err := f.svc.CheckTimeRemaining(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, 20*60, status.TimeRemaining)
	assert.False(t, status.AutoSubmit)
	assert.Equal(t, "Quantitative Aptitude", status.SectionName)

	_, ok := f.cache.SectionStart(ctx, state.Attempt.ID, f.sectionA.ID)
	assert.True(t, ok, "cache should be healed from the database")
}

func TestCheckTimeRemainingSignalsAutoSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	status, err := f.svc.CheckTimeRemaining(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, 0, status.TimeRemaining)
	assert.True(t, status.AutoSubmit)
}

func TestRecoverSessionResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	result, err := f.svc.RecoverSession(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, RecoveryResumed, result.Outcome)
	assert.Equal(t, 20*60, result.TimeRemaining)
}

func TestRecoverSessionAbandonsAfterInactivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	result, err := f.svc.RecoverSession(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, RecoveryAbandoned, result.Outcome)
	assert.Equal(t, model.AttemptStatusAbandoned, result.Attempt.Status)
	// Abandonment never scores.
	assert.Nil(t, result.Attempt.TotalScore)

	saved := f.store.attempts[state.Attempt.ID]
	assert.Equal(t, model.AttemptStatusAbandoned, saved.Status)
}

func TestRecoverSessionAdvancesPastExpiredSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	// Section A (30m) expires, but recent activity keeps the attempt alive.
	f.clock.Advance(35 * time.Minute)
	require.NoError(t, f.cache.TouchActivity(ctx, state.Attempt.ID, f.clock.Now()))

	result, err := f.svc.RecoverSession(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, RecoverySectionExpired, result.Outcome)
	require.NotNil(t, result.Section)
	assert.Equal(t, f.sectionB.ID, result.Section.ID)
	assert.Equal(t, 20*60, result.TimeRemaining)

	sa, err := f.store.GetByAttemptAndSection(ctx, state.Attempt.ID, f.sectionA.ID)
	require.NoError(t, err)
	assert.True(t, sa.IsCompleted)
	require.NotNil(t, sa.Score)
	assert.Equal(t, 2.0, *sa.Score)
}

func TestRecoverSessionFinishesWhenLastSectionExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SubmitSection(ctx, userID, f.examID) // skip section A
	require.NoError(t, err)
	_, err = f.svc.EnterExam(ctx, userID, f.examID) // start section B
	require.NoError(t, err)

	// Section B (20m) expires with activity still fresh.
	f.clock.Advance(25 * time.Minute)
	require.NoError(t, f.cache.TouchActivity(ctx, state.Attempt.ID, f.clock.Now()))

	result, err := f.svc.RecoverSession(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, RecoveryFinished, result.Outcome)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, result.Attempt.Status)
}

func TestSweepCannotResurrectFinishedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	// The sweep lists the attempt while it is still in progress...
	stale := *f.store.attempts[state.Attempt.ID]
	require.Equal(t, model.AttemptStatusInProgress, stale.Status)

	// ...then loses the race to the user submitting the whole exam.
	result, err := f.svc.SubmitExam(ctx, userID, f.examID)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusAutoSubmitted, result.Attempt.Status)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.ForceRecover(ctx, &stale)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)

	// The terminal status and persisted totals must survive the sweep.
	saved := f.store.attempts[state.Attempt.ID]
	assert.Equal(t, model.AttemptStatusAutoSubmitted, saved.Status)
	require.NotNil(t, saved.TotalScore)
	assert.Equal(t, 2.0, *saved.TotalScore)
	require.NotNil(t, saved.Passed)
}

func TestGetSessionStatusWithoutSession(t *testing.T) {
	f := newFixture(t)

	status, err := f.svc.GetSessionStatus(context.Background(), userID, f.examID)
	require.NoError(t, err)
	assert.False(t, status.SessionExists)
}

func TestGetSessionStatusReportsSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	status, err := f.svc.GetSessionStatus(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.True(t, status.SessionExists)
	assert.Equal(t, model.AttemptStatusInProgress, status.Status)
	assert.Equal(t, "Quantitative Aptitude", status.SectionName)
	assert.Equal(t, 0, status.SectionsCompleted)
	assert.Equal(t, 2, status.SectionsTotal)
	// One of the two section questions has a recorded answer.
	assert.InDelta(t, 50.0, status.SectionProgress, 0.001)
	assert.Equal(t, 25*60, status.TimeRemaining)
}

func TestGetResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q1.ID, f.q1Correct)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, userID, f.q2.ID, f.q2Correct)
	require.NoError(t, err)
	_, err = f.svc.SubmitSection(ctx, userID, f.examID)
	require.NoError(t, err)
	_, err = f.svc.EnterExam(ctx, userID, f.examID)
	require.NoError(t, err)

	f.clock.Advance(130 * time.Minute)
	_, err = f.svc.SubmitExam(ctx, userID, f.examID)
	require.NoError(t, err)

	results, err := f.svc.GetResults(ctx, userID, f.examID)
	require.NoError(t, err)

	assert.Equal(t, "UAS Prep Mock 1", results.ExamName)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, results.Status)
	assert.Equal(t, 4.0, results.TotalScore)
	assert.Equal(t, 20.0, results.MaxPossible)
	require.Len(t, results.Sections, 2)
	// Section order follows the exam's stable section order.
	assert.Equal(t, "Quantitative Aptitude", results.Sections[0].SectionName)
	assert.InDelta(t, 40.0, results.Sections[0].Percentage, 0.001)
	assert.True(t, results.Sections[0].Passed)
	assert.Equal(t, "Verbal Reasoning", results.Sections[1].SectionName)
	assert.False(t, results.Sections[1].Passed)

	assert.Equal(t, "2h 10m 0s", results.DurationTaken)
	// Allocated: 30m + 20m sections plus the 15m transition buffer = 65m,
	// against 130m taken.
	assert.InDelta(t, 50.0, results.TimeEfficiency, 0.001)
	assert.NotEmpty(t, results.Weaknesses)
}

func TestTimeEfficiency(t *testing.T) {
	assert.Equal(t, 0.0, timeEfficiency(0, time.Minute))
	assert.Equal(t, 0.0, timeEfficiency(65, 0))
	assert.Equal(t, 100.0, timeEfficiency(65, 30*time.Minute))
	assert.InDelta(t, 50.0, timeEfficiency(65, 130*time.Minute), 1e-9)
}

func TestGetResultsWithoutFinishedAttempt(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetResults(context.Background(), userID, f.examID)
	assert.ErrorIs(t, err, ErrNoFinishedAttempt)
}
