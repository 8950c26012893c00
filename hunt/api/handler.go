// hunt/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/cryptichunt/go-services/hunt/leaderboard"
	"github.com/cryptichunt/go-services/hunt/service"
	"github.com/cryptichunt/go-services/shared/api"
	"github.com/gorilla/mux"
)

// HuntAPIHandlers holds references to the services that handle business logic
// for the hunt service.
type HuntAPIHandlers struct {
	HuntService *service.ProgressionService
	Leaderboard *leaderboard.Provider
	Hub         SubscriptionHub
}

// NewHuntAPIHandlers is the constructor for the hunt API handlers.
func NewHuntAPIHandlers(hs *service.ProgressionService, lp *leaderboard.Provider, h SubscriptionHub) *HuntAPIHandlers {
	return &HuntAPIHandlers{
		HuntService: hs,
		Leaderboard: lp,
		Hub:         h,
	}
}

// --- Request/Response DTOs (Data Transfer Objects) ---

// SubmitAnswerRequest is the structure for the request body of /hunt/submit.
type SubmitAnswerRequest struct {
	TeamID string `json:"teamId"`
	Answer string `json:"answer"`
}

// RegisterTeamRequest is the structure for the request body of /hunt/teams.
type RegisterTeamRequest struct {
	TeamID string `json:"teamId,omitempty"` // optional, generated when absent
	Name   string `json:"name"`
}

// DisqualifyRequest is the structure for the request body for
// disqualifying/reinstating. DurationSec 0 means permanent.
type DisqualifyRequest struct {
	TeamID      string `json:"teamId"`
	DurationSec int64  `json:"duration_seconds"`
	Reason      string `json:"reason,omitempty"`
}

// ReinstateRequest is the structure for the request body of /hunt/reinstate.
type ReinstateRequest struct {
	TeamID string `json:"teamId"`
}

// LeaderboardResponse is the structure for the JSON response of /hunt/leaderboard.
type LeaderboardResponse struct {
	Leaderboard []leaderboard.Entry `json:"leaderboard"`
	Timestamp   string              `json:"timestamp"`
}

// --- Handler Methods ---

// HandleSubmitAnswer handles answer submissions.
// POST /hunt/submit
// Body: { "teamId": "<team_id>", "answer": "<answer>" }
func (hah *HuntAPIHandlers) HandleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.TeamID == "" {
		api.WriteBadRequest(w, "Team ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := hah.HuntService.SubmitAnswer(ctx, req.TeamID, req.Answer)
	if err != nil {
		if rl, ok := service.IsRateLimited(err); ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(rl.RetryAfter.Seconds()))))
			api.WriteTooManyRequests(w, rl.Error())
			return
		}
		switch {
		case errors.Is(err, service.ErrInvalidAnswer):
			api.WriteBadRequest(w, "Answer must be lowercase letters and digits only")
		case errors.Is(err, service.ErrTeamNotFound):
			api.WriteNotFound(w, "Team not found")
		case errors.Is(err, service.ErrLevelNotFound):
			api.WriteNotFound(w, "No question is defined for the team's current level")
		case errors.Is(err, service.ErrTeamDisqualified):
			api.WriteError(w, http.StatusForbidden, hah.disqualifiedMessage(ctx, req.TeamID))
		default:
			log.Printf("Error handling submission for team %s: %v", req.TeamID, err)
			api.WriteInternalServerError(w, "Failed to process submission")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, result)
}

// disqualifiedMessage includes the recorded reason when one is available.
func (hah *HuntAPIHandlers) disqualifiedMessage(ctx context.Context, teamID string) string {
	reason, err := hah.HuntService.DisqualificationReason(ctx, teamID)
	if err != nil || reason == "" {
		return "Team is disqualified"
	}
	return fmt.Sprintf("Team is disqualified: %s", reason)
}

// HandleGetCurrentState handles requests for a team's current level view.
// GET /hunt/teams/{teamId}/state
func (hah *HuntAPIHandlers) HandleGetCurrentState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	teamID := vars["teamId"]
	if teamID == "" {
		api.WriteBadRequest(w, "Team ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	state, err := hah.HuntService.CurrentState(ctx, teamID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTeamNotFound):
			api.WriteNotFound(w, "Team not found")
		case errors.Is(err, service.ErrLevelNotFound):
			api.WriteNotFound(w, "No question is defined for the team's current level")
		default:
			log.Printf("Error retrieving state for team %s: %v", teamID, err)
			api.WriteInternalServerError(w, "Failed to retrieve team state")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, state)
}

// HandleGetCurrentHints handles requests for the enabled hints of a team's
// current level.
// GET /hunt/teams/{teamId}/hints
func (hah *HuntAPIHandlers) HandleGetCurrentHints(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	teamID := vars["teamId"]
	if teamID == "" {
		api.WriteBadRequest(w, "Team ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	hints, err := hah.HuntService.CurrentHints(ctx, teamID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTeamNotFound):
			api.WriteNotFound(w, "Team not found")
		case errors.Is(err, service.ErrLevelNotFound):
			api.WriteNotFound(w, "No question is defined for the team's current level")
		default:
			log.Printf("Error retrieving hints for team %s: %v", teamID, err)
			api.WriteInternalServerError(w, "Failed to retrieve hints")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"hints": hints})
}

// HandleGetLeaderboard handles plain pull requests for the ranked leaderboard.
// GET /hunt/leaderboard
func (hah *HuntAPIHandlers) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := hah.Leaderboard.CachedSnapshot(ctx)
	if err != nil {
		log.Printf("Error computing leaderboard snapshot: %v", err)
		api.WriteInternalServerError(w, "Failed to retrieve leaderboard")
		return
	}

	api.WriteJSON(w, http.StatusOK, LeaderboardResponse{
		Leaderboard: entries,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleRegisterTeam handles team registration.
// POST /hunt/teams
// Body: { "teamId": "<optional_id>", "name": "<team_name>" }
func (hah *HuntAPIHandlers) HandleRegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req RegisterTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Name == "" {
		api.WriteBadRequest(w, "Team name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	team, err := hah.HuntService.RegisterTeam(ctx, req.TeamID, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrTeamExists) {
			api.WriteConflict(w, "Team already exists")
			return
		}
		log.Printf("Error registering team %q: %v", req.Name, err)
		api.WriteInternalServerError(w, "Failed to register team")
		return
	}

	api.WriteJSON(w, http.StatusCreated, team)
	log.Printf("Team %s (%q) registered.", team.ID, team.Name)
}

// HandleDisqualifyTeam handles requests to disqualify a team.
// POST /hunt/disqualify
// Body: { "teamId": "<team_id>", "duration_seconds": <seconds>, "reason": "..." }
func (hah *HuntAPIHandlers) HandleDisqualifyTeam(w http.ResponseWriter, r *http.Request) {
	var req DisqualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.TeamID == "" {
		api.WriteBadRequest(w, "Team ID is required")
		return
	}
	if req.DurationSec < 0 {
		api.WriteBadRequest(w, "Use /hunt/reinstate to reinstate a team")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var expiresAt *time.Time
	if req.DurationSec > 0 {
		expires := time.Now().Add(time.Duration(req.DurationSec) * time.Second)
		expiresAt = &expires
	}

	if err := hah.HuntService.Disqualify(ctx, req.TeamID, expiresAt, req.Reason); err != nil {
		log.Printf("Error disqualifying team %s: %v", req.TeamID, err)
		api.WriteInternalServerError(w, "Failed to disqualify team")
		return
	}

	responseMsg := fmt.Sprintf("Team %s disqualified", req.TeamID)
	if expiresAt != nil {
		responseMsg = fmt.Sprintf("Team %s disqualified until %v", req.TeamID, expiresAt.Format(time.RFC3339))
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"message": responseMsg, "teamId": req.TeamID})
}

// HandleReinstateTeam handles requests to reinstate a disqualified team.
// POST /hunt/reinstate
// Body: { "teamId": "<team_id>" }
func (hah *HuntAPIHandlers) HandleReinstateTeam(w http.ResponseWriter, r *http.Request) {
	var req ReinstateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.TeamID == "" {
		api.WriteBadRequest(w, "Team ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := hah.HuntService.Reinstate(ctx, req.TeamID); err != nil {
		log.Printf("Error reinstating team %s: %v", req.TeamID, err)
		api.WriteInternalServerError(w, "Failed to reinstate team")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Team reinstated", "teamId": req.TeamID})
}

// RegisterRoutes registers all API endpoints for the Hunt Service.
// This method is called from main.go to set up the HTTP routes.
func (hah *HuntAPIHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/hunt/submit", hah.HandleSubmitAnswer).Methods("POST")
	router.HandleFunc("/hunt/teams", hah.HandleRegisterTeam).Methods("POST")
	router.HandleFunc("/hunt/teams/{teamId}/state", hah.HandleGetCurrentState).Methods("GET")
	router.HandleFunc("/hunt/teams/{teamId}/hints", hah.HandleGetCurrentHints).Methods("GET")
	router.HandleFunc("/hunt/leaderboard", hah.HandleGetLeaderboard).Methods("GET")
	router.HandleFunc("/hunt/leaderboard/live", hah.HandleLeaderboardSocket).Methods("GET")
	router.HandleFunc("/hunt/disqualify", hah.HandleDisqualifyTeam).Methods("POST")
	router.HandleFunc("/hunt/reinstate", hah.HandleReinstateTeam).Methods("POST")
}
