// shared/service/huntclient.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptichunt/go-services/shared/api"
	"github.com/cryptichunt/go-services/shared/models"
)

// HuntServiceClient is a client for the Hunt Service.
// It uses an internal apiClient to make HTTP requests to the Hunt Service.
type HuntServiceClient struct {
	apiClient *api.Client
}

// NewHuntClient creates a new Hunt Service client.
// It takes the base URL of the Hunt Service as an argument.
func NewHuntClient(baseURL string) *HuntServiceClient {
	return &HuntServiceClient{
		apiClient: api.NewClient(baseURL, api.NewDefaultHTTPClient()),
	}
}

// --- Request/Response DTOs for Hunt Service Communication ---
// These mirror the DTOs defined in hunt/api/handler.go for consistency.

// SubmitAnswerRequest is the structure for the request body when submitting an answer.
type SubmitAnswerRequest struct {
	TeamID string `json:"teamId"`
	Answer string `json:"answer"`
}

// SubmitAnswerResponse is the structure of the submission outcome.
type SubmitAnswerResponse struct {
	Correct    bool   `json:"correct"`
	Completed  bool   `json:"completed"`
	Message    string `json:"message"`
	NextLevel  *int   `json:"nextLevel"`
	TotalScore int    `json:"totalScore"`
}

// TeamStateResponse is the structure of the current-state projection.
type TeamStateResponse struct {
	Level       int    `json:"level"`
	Title       string `json:"title"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	TeamID       string     `json:"teamId"`
	TeamName     string     `json:"teamName"`
	TotalScore   int        `json:"totalScore"`
	CurrentLevel int        `json:"currentLevel"`
	LastAnswerAt *time.Time `json:"lastAnswerAt"`
	Rank         int        `json:"rank"`
}

// LeaderboardResponse is the structure of the leaderboard pull endpoint.
type LeaderboardResponse struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Timestamp   string             `json:"timestamp"`
}

// RegisterTeamRequest is the structure for the request body when registering a team.
type RegisterTeamRequest struct {
	TeamID string `json:"teamId,omitempty"`
	Name   string `json:"name"`
}

// HintsResponse is the structure of the hints endpoint response.
type HintsResponse struct {
	Hints []models.Hint `json:"hints"`
}

// --- Client Methods for Hunt Service API Endpoints ---

// SubmitAnswer submits an answer for a team.
// Returns api.ErrTooManyRequests (wrapped) while the team's cooldown is
// active, and api.ErrNotFound if the team does not exist.
func (c *HuntServiceClient) SubmitAnswer(ctx context.Context, teamID, answer string) (*SubmitAnswerResponse, error) {
	req := SubmitAnswerRequest{TeamID: teamID, Answer: answer}
	resp := &SubmitAnswerResponse{}
	if err := c.apiClient.Post(ctx, "/hunt/submit", req, resp); err != nil {
		return nil, fmt.Errorf("failed to submit answer for team %s: %w", teamID, err)
	}
	return resp, nil
}

// GetTeamState fetches a team's current level view.
// Returns api.ErrNotFound (wrapped) if the team does not exist.
func (c *HuntServiceClient) GetTeamState(ctx context.Context, teamID string) (*TeamStateResponse, error) {
	resp := &TeamStateResponse{}
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/hunt/teams/%s/state", teamID), resp); err != nil {
		return nil, fmt.Errorf("failed to get state for team %s: %w", teamID, err)
	}
	return resp, nil
}

// GetTeamHints fetches the enabled hints for a team's current level.
func (c *HuntServiceClient) GetTeamHints(ctx context.Context, teamID string) ([]models.Hint, error) {
	resp := &HintsResponse{}
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/hunt/teams/%s/hints", teamID), resp); err != nil {
		return nil, fmt.Errorf("failed to get hints for team %s: %w", teamID, err)
	}
	return resp.Hints, nil
}

// GetLeaderboard fetches the current ranked leaderboard.
func (c *HuntServiceClient) GetLeaderboard(ctx context.Context) (*LeaderboardResponse, error) {
	resp := &LeaderboardResponse{}
	if err := c.apiClient.Get(ctx, "/hunt/leaderboard", resp); err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return resp, nil
}

// RegisterTeam registers a new team and its initial progress record.
// Returns api.ErrConflict (wrapped) if the team already exists.
func (c *HuntServiceClient) RegisterTeam(ctx context.Context, teamID, name string) (*models.Team, error) {
	req := RegisterTeamRequest{TeamID: teamID, Name: name}
	team := &models.Team{}
	if err := c.apiClient.Post(ctx, "/hunt/teams", req, team); err != nil {
		return nil, fmt.Errorf("failed to register team %q: %w", name, err)
	}
	return team, nil
}
