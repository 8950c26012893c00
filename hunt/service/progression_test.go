package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cryptichunt/go-services/hunt/store"
	"github.com/cryptichunt/go-services/shared/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// --- fakes ---

// fakeProgressStore keeps per-team records behind a mutex, matching the
// isolation the real conditional updates give concurrent submissions.
type fakeProgressStore struct {
	mu         sync.Mutex
	recs       map[string]*models.TeamProgress
	touchCalls int
	applyCalls int
	touchErrs  int // number of leading TouchActivity calls that fail
	applyErrs  int // number of leading ApplyCorrectAnswer calls that fail
	forceLost  bool
}

func (f *fakeProgressStore) CreateProgress(ctx context.Context, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[teamID]; ok {
		return store.ErrDuplicateKey
	}
	f.recs[teamID] = &models.TeamProgress{TeamID: teamID, CurrentLevel: 1, LastActivityAt: time.Now().Add(-time.Hour)}
	return nil
}

func (f *fakeProgressStore) GetProgress(ctx context.Context, teamID string) (*models.TeamProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[teamID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeProgressStore) TouchActivity(ctx context.Context, teamID string, prevActivityAt, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchCalls++
	if f.touchErrs > 0 {
		f.touchErrs--
		return false, errors.New("transient store failure")
	}
	rec := f.recs[teamID]
	if f.forceLost || !rec.LastActivityAt.Equal(prevActivityAt) {
		return false, nil
	}
	rec.LastActivityAt = now
	return true, nil
}

func (f *fakeProgressStore) ApplyCorrectAnswer(ctx context.Context, teamID string, level, points int, prevActivityAt, now time.Time) (*models.TeamProgress, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyErrs > 0 {
		f.applyErrs--
		return nil, false, errors.New("transient store failure")
	}
	rec := f.recs[teamID]
	if f.forceLost || rec.CurrentLevel != level || !rec.LastActivityAt.Equal(prevActivityAt) {
		return nil, false, nil
	}
	rec.TotalScore += points
	rec.CurrentLevel++
	rec.LastActivityAt = now
	rec.LastAnswerAt = &now
	cp := *rec
	return &cp, true, nil
}

type fakeQuestionStore struct {
	questions map[int]*models.Question
}

func (f *fakeQuestionStore) GetByLevel(ctx context.Context, level int) (*models.Question, error) {
	q, ok := f.questions[level]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return q, nil
}

func (f *fakeQuestionStore) CountLevels(ctx context.Context) (int, error) {
	return len(f.questions), nil
}

func (f *fakeQuestionStore) EnabledHints(ctx context.Context, level int) ([]models.Hint, error) {
	q, ok := f.questions[level]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	var enabled []models.Hint
	for _, h := range q.Hints {
		if h.Enabled {
			enabled = append(enabled, h)
		}
	}
	return enabled, nil
}

type fakeTeamStore struct {
	teams map[string]*models.Team
}

func (f *fakeTeamStore) CreateTeam(ctx context.Context, team *models.Team) error {
	if _, ok := f.teams[team.ID]; ok {
		return store.ErrDuplicateKey
	}
	f.teams[team.ID] = team
	return nil
}

func (f *fakeTeamStore) GetTeamByID(ctx context.Context, teamID string) (*models.Team, error) {
	t, ok := f.teams[teamID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return t, nil
}

type fakeDisqualifyStore struct {
	disqualified map[string]bool
	reasons      map[string]string
}

func (f *fakeDisqualifyStore) DisqualifyTeam(ctx context.Context, teamID string, expiresAt *time.Time, reason string) error {
	f.disqualified[teamID] = true
	if reason != "" {
		f.reasons[teamID] = reason
	}
	return nil
}

func (f *fakeDisqualifyStore) ReinstateTeam(ctx context.Context, teamID string) error {
	delete(f.disqualified, teamID)
	delete(f.reasons, teamID)
	return nil
}

func (f *fakeDisqualifyStore) IsTeamDisqualified(ctx context.Context, teamID string) (bool, error) {
	return f.disqualified[teamID], nil
}

func (f *fakeDisqualifyStore) GetDisqualificationReason(ctx context.Context, teamID string) (string, error) {
	return f.reasons[teamID], nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyProgressChanged(teamID string) {
	f.notified = append(f.notified, teamID)
}

// --- harness ---

type harness struct {
	progress  *fakeProgressStore
	questions *fakeQuestionStore
	teams     *fakeTeamStore
	dq        *fakeDisqualifyStore
	notifier  *fakeNotifier
	svc       *ProgressionService
}

func newHarness(t *testing.T, totalLevels int) *harness {
	t.Helper()

	questions := make(map[int]*models.Question)
	for lvl := 1; lvl <= totalLevels; lvl++ {
		questions[lvl] = &models.Question{
			Level:         lvl,
			Title:         "Puzzle",
			Description:   "Find the answer",
			Points:        100 * lvl,
			CorrectAnswer: "answer",
		}
	}

	h := &harness{
		progress:  &fakeProgressStore{recs: make(map[string]*models.TeamProgress)},
		questions: &fakeQuestionStore{questions: questions},
		teams:     &fakeTeamStore{teams: make(map[string]*models.Team)},
		dq:        &fakeDisqualifyStore{disqualified: make(map[string]bool), reasons: make(map[string]string)},
		notifier:  &fakeNotifier{},
	}
	h.svc = NewProgressionService(h.progress, h.questions, h.teams, h.dq, h.notifier, 5*time.Second)
	return h
}

func (h *harness) seed(teamID string, level, score int, lastActivity time.Time) {
	h.progress.recs[teamID] = &models.TeamProgress{
		TeamID:         teamID,
		CurrentLevel:   level,
		TotalScore:     score,
		LastActivityAt: lastActivity,
	}
}

func (h *harness) seedTeam(level, score int, lastActivity time.Time) {
	h.seed("team-1", level, score, lastActivity)
}

func (h *harness) record(teamID string) *models.TeamProgress {
	h.progress.mu.Lock()
	defer h.progress.mu.Unlock()
	return h.progress.recs[teamID]
}

func longAgo() time.Time {
	return time.Now().Add(-time.Hour)
}

// --- SubmitAnswer ---

func TestSubmitAnswerRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())

	for _, answer := range []string{"", "Answer", "an swer", "ans-wer", "answer!", "ANSWER"} {
		_, err := h.svc.SubmitAnswer(context.Background(), "team-1", answer)
		if !errors.Is(err, ErrInvalidAnswer) {
			t.Fatalf("answer %q: expected ErrInvalidAnswer, got %v", answer, err)
		}
	}
	if h.progress.touchCalls != 0 || h.progress.applyCalls != 0 {
		t.Fatalf("invalid answers must not reach the store (touch=%d apply=%d)", h.progress.touchCalls, h.progress.applyCalls)
	}
}

func TestSubmitAnswerUnknownTeam(t *testing.T) {
	h := newHarness(t, 3)

	_, err := h.svc.SubmitAnswer(context.Background(), "nobody", "answer")
	if !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestSubmitAnswerDisqualifiedTeam(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())
	h.dq.disqualified["team-1"] = true

	_, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	if !errors.Is(err, ErrTeamDisqualified) {
		t.Fatalf("expected ErrTeamDisqualified, got %v", err)
	}
}

func TestDisqualificationReasonRoundTrip(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())

	if err := h.svc.Disqualify(context.Background(), "team-1", nil, "answer sharing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, err := h.svc.DisqualificationReason(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "answer sharing" {
		t.Fatalf("expected recorded reason, got %q", reason)
	}

	if err := h.svc.Reinstate(context.Background(), "team-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, err = h.svc.DisqualificationReason(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "" {
		t.Fatalf("reason must be cleared on reinstatement, got %q", reason)
	}
}

func TestSubmitAnswerAfterCompletionIsTerminal(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(4, 600, longAgo())

	result, err := h.svc.SubmitAnswer(context.Background(), "team-1", "anything1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Correct || !result.Completed {
		t.Fatalf("expected terminal completed result, got %+v", result)
	}
	if result.NextLevel != nil {
		t.Fatalf("completed result must not carry a next level, got %d", *result.NextLevel)
	}
	if result.TotalScore != 600 {
		t.Fatalf("expected score 600, got %d", result.TotalScore)
	}
	if h.progress.touchCalls != 0 || h.progress.applyCalls != 0 {
		t.Fatal("completed team submissions must not mutate the record")
	}
	if len(h.notifier.notified) != 0 {
		t.Fatal("completed team submissions must not trigger broadcasts")
	}
}

func TestSubmitAnswerRateLimited(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, time.Now().Add(-time.Second))

	_, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 5*time.Second {
		t.Fatalf("retry-after out of range: %v", rl.RetryAfter)
	}
	if h.progress.touchCalls != 0 || h.progress.applyCalls != 0 {
		t.Fatal("rate-limited submissions must not mutate the record")
	}
	if h.record("team-1").CurrentLevel != 1 || h.record("team-1").TotalScore != 0 {
		t.Fatalf("record changed under rate limit: %+v", h.record("team-1"))
	}
}

func TestSubmitAnswerIncorrect(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())

	result, err := h.svc.SubmitAnswer(context.Background(), "team-1", "wrong")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Correct || result.Completed {
		t.Fatalf("expected plain incorrect result, got %+v", result)
	}
	if h.record("team-1").CurrentLevel != 1 || h.record("team-1").TotalScore != 0 {
		t.Fatalf("incorrect answer must not change level or score: %+v", h.record("team-1"))
	}
	if h.progress.touchCalls != 1 {
		t.Fatalf("expected one activity touch, got %d", h.progress.touchCalls)
	}
	if h.record("team-1").LastAnswerAt != nil {
		t.Fatal("incorrect answer must not stamp last_answer_at")
	}
	if len(h.notifier.notified) != 0 {
		t.Fatal("incorrect answers must not trigger broadcasts")
	}
}

func TestSubmitAnswerIncorrectStartsCooldown(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())

	if _, err := h.svc.SubmitAnswer(context.Background(), "team-1", "wrong"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError after an incorrect attempt, got %v", err)
	}
}

func TestSubmitAnswerCorrect(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())

	result, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Correct || result.Completed {
		t.Fatalf("expected correct non-terminal result, got %+v", result)
	}
	if result.NextLevel == nil || *result.NextLevel != 2 {
		t.Fatalf("expected next level 2, got %v", result.NextLevel)
	}
	if result.TotalScore != 100 {
		t.Fatalf("expected score 100, got %d", result.TotalScore)
	}
	if h.record("team-1").CurrentLevel != 2 || h.record("team-1").TotalScore != 100 {
		t.Fatalf("record not advanced: %+v", h.record("team-1"))
	}
	if h.record("team-1").LastAnswerAt == nil {
		t.Fatal("correct answer must stamp last_answer_at")
	}
	if len(h.notifier.notified) != 1 || h.notifier.notified[0] != "team-1" {
		t.Fatalf("expected one broadcast for team-1, got %v", h.notifier.notified)
	}
}

func TestSubmitAnswerFinalLevelCompletes(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(3, 300, longAgo())

	result, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Correct || !result.Completed {
		t.Fatalf("expected completed result, got %+v", result)
	}
	if result.NextLevel != nil {
		t.Fatalf("completed result must not carry a next level, got %d", *result.NextLevel)
	}
	if result.TotalScore != 600 {
		t.Fatalf("expected score 600, got %d", result.TotalScore)
	}
	// Level still increments past the last defined level; completion is
	// derived from it.
	if h.record("team-1").CurrentLevel != 4 {
		t.Fatalf("expected level 4 after the final answer, got %d", h.record("team-1").CurrentLevel)
	}
	if len(h.notifier.notified) != 1 {
		t.Fatalf("expected one broadcast, got %v", h.notifier.notified)
	}
}

func TestConcurrentSubmissionsForDifferentTeams(t *testing.T) {
	h := newHarness(t, 3)
	h.seed("team-1", 1, 0, time.Now()) // inside its cooldown window
	h.seed("team-2", 1, 0, longAgo())  // free to submit

	type outcome struct {
		teamID string
		result *SubmissionResult
		err    error
	}
	outcomes := make(chan outcome, 2)
	for _, teamID := range []string{"team-1", "team-2"} {
		go func(id string) {
			result, err := h.svc.SubmitAnswer(context.Background(), id, "answer")
			outcomes <- outcome{teamID: id, result: result, err: err}
		}(teamID)
	}

	// One team's cooldown must never stall the other's submission.
	for i := 0; i < 2; i++ {
		select {
		case out := <-outcomes:
			switch out.teamID {
			case "team-1":
				var rl *RateLimitedError
				if !errors.As(out.err, &rl) {
					t.Fatalf("team-1: expected RateLimitedError, got %v", out.err)
				}
			case "team-2":
				if out.err != nil {
					t.Fatalf("team-2: unexpected error: %v", out.err)
				}
				if !out.result.Correct {
					t.Fatalf("team-2: expected correct result, got %+v", out.result)
				}
			}
		case <-time.After(time.Second):
			t.Fatal("a submission blocked on another team's cooldown window")
		}
	}

	if got := h.record("team-2").CurrentLevel; got != 2 {
		t.Fatalf("team-2 should have advanced to level 2, got %d", got)
	}
	if got := h.record("team-1").CurrentLevel; got != 1 {
		t.Fatalf("team-1 must be untouched by its rate-limited attempt, got level %d", got)
	}
}

func TestSubmitAnswerLostRaceIsRateLimited(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())
	h.progress.forceLost = true

	_, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError for lost conditional update, got %v", err)
	}
	if len(h.notifier.notified) != 0 {
		t.Fatal("lost submissions must not trigger broadcasts")
	}
}

func TestSubmitAnswerRetriesTransientFailureOnce(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())
	h.progress.applyErrs = 1

	result, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if !result.Correct {
		t.Fatalf("expected correct result, got %+v", result)
	}
	if h.progress.applyCalls != 2 {
		t.Fatalf("expected exactly two apply attempts, got %d", h.progress.applyCalls)
	}
}

func TestSubmitAnswerPersistentFailureSurfaces(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())
	h.progress.applyErrs = 2

	_, err := h.svc.SubmitAnswer(context.Background(), "team-1", "answer")
	if err == nil {
		t.Fatal("expected error after both attempts failed")
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		t.Fatalf("a store failure must not masquerade as rate limiting: %v", err)
	}
}

// --- CurrentState ---

func TestCurrentStateActiveLevel(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(2, 100, longAgo())

	state, err := h.svc.CurrentState(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Level != 2 || state.Completed {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestCurrentStateCompleted(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(4, 600, longAgo())

	state, err := h.svc.CurrentState(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Completed {
		t.Fatalf("expected completed state, got %+v", state)
	}
	if state.Level != 3 {
		t.Fatalf("completed state reports the last defined level, got %d", state.Level)
	}
	if state.Title != "Hunt Complete!" {
		t.Fatalf("unexpected terminal title %q", state.Title)
	}
}

func TestCurrentStateUnknownTeam(t *testing.T) {
	h := newHarness(t, 3)

	_, err := h.svc.CurrentState(context.Background(), "nobody")
	if !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
}

// --- CurrentHints ---

func TestCurrentHintsFiltersDisabled(t *testing.T) {
	h := newHarness(t, 3)
	h.seedTeam(1, 0, longAgo())
	h.questions.questions[1].Hints = []models.Hint{
		{ID: "h1", Content: "look closer", Enabled: true},
		{ID: "h2", Content: "spoiler", Enabled: false},
		{ID: "h3", Content: "think backwards", Enabled: true},
	}

	hints, err := h.svc.CurrentHints(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hints) != 2 {
		t.Fatalf("expected 2 enabled hints, got %d", len(hints))
	}
	for _, hint := range hints {
		if !hint.Enabled {
			t.Fatalf("disabled hint leaked: %+v", hint)
		}
	}
}

// --- RegisterTeam ---

func TestRegisterTeamCreatesProgressAtLevelOne(t *testing.T) {
	h := newHarness(t, 3)

	team, err := h.svc.RegisterTeam(context.Background(), "", "The Sleuths")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team.ID == "" {
		t.Fatal("expected a generated team id")
	}
	prog, err := h.progress.GetProgress(context.Background(), team.ID)
	if err != nil {
		t.Fatalf("expected progress record: %v", err)
	}
	if prog.CurrentLevel != 1 || prog.TotalScore != 0 {
		t.Fatalf("fresh progress must start at level 1 score 0, got %+v", prog)
	}
}

func TestRegisterTeamDuplicate(t *testing.T) {
	h := newHarness(t, 3)

	if _, err := h.svc.RegisterTeam(context.Background(), "team-1", "First"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := h.svc.RegisterTeam(context.Background(), "team-1", "Second")
	if !errors.Is(err, ErrTeamExists) {
		t.Fatalf("expected ErrTeamExists, got %v", err)
	}
}
