// hunt/service/progression.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/cryptichunt/go-services/hunt/store"
	"github.com/cryptichunt/go-services/shared/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// answerPattern is the only normalization applied to submissions: answers are
// lowercase alphanumeric, no spaces. The comparison against the accepted
// answer is exact-match on the validated string.
var answerPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// ProgressStore is the durable per-team progress record, exposing the
// conditional updates the engine serializes same-team submissions with.
type ProgressStore interface {
	CreateProgress(ctx context.Context, teamID string) error
	GetProgress(ctx context.Context, teamID string) (*models.TeamProgress, error)
	TouchActivity(ctx context.Context, teamID string, prevActivityAt, now time.Time) (bool, error)
	ApplyCorrectAnswer(ctx context.Context, teamID string, level, points int, prevActivityAt, now time.Time) (*models.TeamProgress, bool, error)
}

// QuestionStore is the read-only view of the admin-owned level definitions.
type QuestionStore interface {
	GetByLevel(ctx context.Context, level int) (*models.Question, error)
	CountLevels(ctx context.Context) (int, error)
	EnabledHints(ctx context.Context, level int) ([]models.Hint, error)
}

// TeamStore is the team identity record store.
type TeamStore interface {
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*models.Team, error)
}

// DisqualifyStore manages the disqualification flags consulted before any
// submission is evaluated.
type DisqualifyStore interface {
	DisqualifyTeam(ctx context.Context, teamID string, expiresAt *time.Time, reason string) error
	ReinstateTeam(ctx context.Context, teamID string) error
	IsTeamDisqualified(ctx context.Context, teamID string) (bool, error)
	GetDisqualificationReason(ctx context.Context, teamID string) (string, error)
}

// ChangeNotifier receives fire-and-forget progress-change events after a
// correct answer commits. The broadcast hub implements it.
type ChangeNotifier interface {
	NotifyProgressChanged(teamID string)
}

// SubmissionResult is the outcome of one answer submission.
type SubmissionResult struct {
	Correct    bool   `json:"correct"`
	Completed  bool   `json:"completed"`
	Message    string `json:"message"`
	NextLevel  *int   `json:"nextLevel"` // nil once the hunt is completed
	TotalScore int    `json:"totalScore"`
}

// CurrentState is the read-only projection of a team's progress joined with
// its current level definition.
type CurrentState struct {
	Level       int    `json:"level"`
	Title       string `json:"title"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

const (
	messageIncorrect = "Incorrect answer."
	messageCorrect   = "Correct! Proceed to the next level."
	messageCompleted = "Congratulations! You have completed all levels and won the hunt!"
)

// ProgressionService owns the game-progression state machine: it validates
// submissions, enforces the cooldown, evaluates answers against the current
// level, commits score/level changes, and notifies the broadcast hub.
type ProgressionService struct {
	progress  ProgressStore
	questions QuestionStore
	teams     TeamStore
	dq        DisqualifyStore
	notifier  ChangeNotifier
	cooldown  time.Duration
}

// NewProgressionService is the constructor for ProgressionService.
func NewProgressionService(
	progress ProgressStore,
	questions QuestionStore,
	teams TeamStore,
	dq DisqualifyStore,
	notifier ChangeNotifier,
	cooldown time.Duration,
) *ProgressionService {
	return &ProgressionService{
		progress:  progress,
		questions: questions,
		teams:     teams,
		dq:        dq,
		notifier:  notifier,
		cooldown:  cooldown,
	}
}

// SubmitAnswer evaluates one answer submission for a team.
//
// Preconditions are checked in order: validation, disqualification, progress
// record existence, hunt completion, cooldown. Only then is the answer
// compared (exact match) against the current level's accepted answer. An
// incorrect answer still spends the cooldown window; a correct answer
// atomically adds the level's points, advances the level by one (even on the
// final level, since completion is derived rather than stored), and stamps
// both timestamps. Concurrent submissions for the same team are serialized by the
// store's conditional updates; the loser is reported as rate limited.
func (s *ProgressionService) SubmitAnswer(ctx context.Context, teamID, rawAnswer string) (*SubmissionResult, error) {
	if !answerPattern.MatchString(rawAnswer) {
		return nil, ErrInvalidAnswer
	}

	disqualified, err := s.dq.IsTeamDisqualified(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to check disqualification for team %s: %w", teamID, err)
	}
	if disqualified {
		return nil, ErrTeamDisqualified
	}

	progress, err := s.progress.GetProgress(ctx, teamID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to load progress for team %s: %w", teamID, err)
	}

	totalLevels, err := s.questions.CountLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count levels: %w", err)
	}

	// Completion is derived: a team past the last defined level is done.
	// Terminal result, no mutation.
	if progress.CurrentLevel > totalLevels {
		return &SubmissionResult{
			Correct:    true,
			Completed:  true,
			Message:    messageCompleted,
			TotalScore: progress.TotalScore,
		}, nil
	}

	now := time.Now()
	if elapsed := now.Sub(progress.LastActivityAt); elapsed < s.cooldown {
		return nil, &RateLimitedError{RetryAfter: s.cooldown - elapsed}
	}

	question, err := s.questions.GetByLevel(ctx, progress.CurrentLevel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("failed to load question for level %d: %w", progress.CurrentLevel, err)
	}

	if rawAnswer != question.CorrectAnswer {
		matched, err := s.touchWithRetry(ctx, teamID, progress.LastActivityAt, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record submission attempt for team %s: %w", teamID, err)
		}
		if !matched {
			// A concurrent submission for this team won the window.
			return nil, s.rateLimitedAfterConflict(ctx, teamID)
		}
		return &SubmissionResult{
			Correct:    false,
			Message:    messageIncorrect,
			TotalScore: progress.TotalScore,
		}, nil
	}

	updated, matched, err := s.applyWithRetry(ctx, teamID, progress.CurrentLevel, question.Points, progress.LastActivityAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to commit correct answer for team %s: %w", teamID, err)
	}
	if !matched {
		return nil, s.rateLimitedAfterConflict(ctx, teamID)
	}

	// Fire-and-forget: broadcast failures must never fail the submission.
	s.notifier.NotifyProgressChanged(teamID)

	completed := progress.CurrentLevel >= totalLevels
	result := &SubmissionResult{
		Correct:    true,
		Completed:  completed,
		Message:    messageCorrect,
		TotalScore: updated.TotalScore,
	}
	if completed {
		result.Message = messageCompleted
	} else {
		next := updated.CurrentLevel
		result.NextLevel = &next
	}
	return result, nil
}

// touchWithRetry records an incorrect attempt, retrying a transient store
// failure exactly once. The conditional update did not commit on failure, so
// the retry has no side effects.
func (s *ProgressionService) touchWithRetry(ctx context.Context, teamID string, prevActivityAt, now time.Time) (bool, error) {
	matched, err := s.progress.TouchActivity(ctx, teamID, prevActivityAt, now)
	if err != nil {
		log.Printf("WARN: Transient failure touching activity for team %s, retrying once: %v", teamID, err)
		matched, err = s.progress.TouchActivity(ctx, teamID, prevActivityAt, now)
	}
	return matched, err
}

// applyWithRetry commits a correct answer, retrying a transient store failure
// exactly once.
func (s *ProgressionService) applyWithRetry(ctx context.Context, teamID string, level, points int, prevActivityAt, now time.Time) (*models.TeamProgress, bool, error) {
	updated, matched, err := s.progress.ApplyCorrectAnswer(ctx, teamID, level, points, prevActivityAt, now)
	if err != nil {
		log.Printf("WARN: Transient failure committing answer for team %s, retrying once: %v", teamID, err)
		updated, matched, err = s.progress.ApplyCorrectAnswer(ctx, teamID, level, points, prevActivityAt, now)
	}
	return updated, matched, err
}

// rateLimitedAfterConflict builds the rate-limit result for a submission that
// lost the conditional update to a concurrent one. The remaining wait is read
// back from the record the winner just stamped.
func (s *ProgressionService) rateLimitedAfterConflict(ctx context.Context, teamID string) error {
	remaining := s.cooldown
	if progress, err := s.progress.GetProgress(ctx, teamID); err == nil {
		if r := s.cooldown - time.Since(progress.LastActivityAt); r > 0 {
			remaining = r
		}
	}
	return &RateLimitedError{RetryAfter: remaining}
}

// CurrentState returns the read-only projection of a team's
// progress joined with its current level definition.
func (s *ProgressionService) CurrentState(ctx context.Context, teamID string) (*CurrentState, error) {
	progress, err := s.progress.GetProgress(ctx, teamID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to load progress for team %s: %w", teamID, err)
	}

	totalLevels, err := s.questions.CountLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count levels: %w", err)
	}

	if progress.CurrentLevel > totalLevels {
		return &CurrentState{
			Level:       totalLevels,
			Title:       "Hunt Complete!",
			Description: messageCompleted,
			Completed:   true,
		}, nil
	}

	question, err := s.questions.GetByLevel(ctx, progress.CurrentLevel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("failed to load question for level %d: %w", progress.CurrentLevel, err)
	}

	return &CurrentState{
		Level:       question.Level,
		Title:       question.Title,
		ImageURL:    question.ImageURL,
		Description: question.Description,
		Completed:   false,
	}, nil
}

// CurrentHints returns the enabled hints for a team's current level. Admins
// toggle hints on and off; players only ever see enabled ones.
func (s *ProgressionService) CurrentHints(ctx context.Context, teamID string) ([]models.Hint, error) {
	progress, err := s.progress.GetProgress(ctx, teamID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to load progress for team %s: %w", teamID, err)
	}

	hints, err := s.questions.EnabledHints(ctx, progress.CurrentLevel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("failed to load hints for level %d: %w", progress.CurrentLevel, err)
	}
	return hints, nil
}

// RegisterTeam materializes a team and its initial progress record. This is
// the narrow seam the web collaborator calls when a team is formed; the
// formation flow itself (invites, membership) lives outside the core.
func (s *ProgressionService) RegisterTeam(ctx context.Context, teamID, name string) (*models.Team, error) {
	if teamID == "" {
		teamID = uuid.New().String()
	}

	team := &models.Team{ID: teamID, Name: name}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrTeamExists
		}
		return nil, err
	}

	if err := s.progress.CreateProgress(ctx, teamID); err != nil {
		// An existing progress record for a brand-new team id means a
		// previous registration got halfway; keep it rather than failing.
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, err
		}
		log.Printf("WARN: Progress record for team %s already existed at registration.", teamID)
	}

	log.Printf("Service: Team %s (%q) registered at level 1.", teamID, name)
	return team, nil
}

// Disqualify flags a team. Its submissions are rejected and it disappears
// from the leaderboard until reinstated; the next broadcast reflects that.
func (s *ProgressionService) Disqualify(ctx context.Context, teamID string, expiresAt *time.Time, reason string) error {
	if err := s.dq.DisqualifyTeam(ctx, teamID, expiresAt, reason); err != nil {
		return err
	}
	s.notifier.NotifyProgressChanged(teamID)
	return nil
}

// DisqualificationReason returns the reason recorded when the team was
// disqualified, or "" when none was given.
func (s *ProgressionService) DisqualificationReason(ctx context.Context, teamID string) (string, error) {
	return s.dq.GetDisqualificationReason(ctx, teamID)
}

// Reinstate clears a team's disqualification.
func (s *ProgressionService) Reinstate(ctx context.Context, teamID string) error {
	if err := s.dq.ReinstateTeam(ctx, teamID); err != nil {
		return err
	}
	s.notifier.NotifyProgressChanged(teamID)
	return nil
}
