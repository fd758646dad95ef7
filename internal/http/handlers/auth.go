package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riskguard/server/internal/auth"
	"github.com/riskguard/server/internal/middleware"
	"github.com/riskguard/server/internal/model"
	"github.com/riskguard/server/internal/repo"
	"github.com/riskguard/server/internal/risk"
	"github.com/riskguard/server/internal/session"
)

// auditPageSize caps the audit listing.
const auditPageSize = 100

// AuthHandler handles the login, approval and audit endpoints.
type AuthHandler struct {
	loginService *auth.LoginService
	auditRepo    repo.AuditRepo
	isPrivileged func(username string) bool

	loginLimiter   *middleware.RateLimiter
	approveLimiter *middleware.RateLimiter
}

// NewAuthHandler creates an auth handler. Per-IP limits: 20 logins and 40
// approval calls per 10 minutes.
func NewAuthHandler(loginService *auth.LoginService, auditRepo repo.AuditRepo, isPrivileged func(string) bool) *AuthHandler {
	if isPrivileged == nil {
		isPrivileged = func(string) bool { return false }
	}
	return &AuthHandler{
		loginService:   loginService,
		auditRepo:      auditRepo,
		isPrivileged:   isPrivileged,
		loginLimiter:   middleware.NewRateLimiter(10*time.Minute, 20),
		approveLimiter: middleware.NewRateLimiter(10*time.Minute, 40),
	}
}

// credentialsRequest is the request body for POST /signup and POST /login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the JSON response for a non-blocked login.
type loginResponse struct {
	Decision    string   `json:"decision"`
	RiskScore   int      `json:"risk_score"`
	Reasons     []string `json:"reasons"`
	Token       string   `json:"token,omitempty"`
	AccessToken string   `json:"access_token,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
}

// statusResponse is the JSON response for GET /check_status/{token}.
type statusResponse struct {
	Status      string `json:"status"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// auditEntryResponse is one row of GET /audit.
type auditEntryResponse struct {
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	RiskScore int       `json:"risk_score"`
	Reasons   []string  `json:"reasons"`
	Country   *string   `json:"country"`
	City      *string   `json:"city"`
	ISP       *string   `json:"isp"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleSignUp handles POST /signup.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.loginService.SignUp(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repo.ErrUserExists) {
			respondWithError(w, http.StatusConflict, "username already exists")
			return
		}
		log.Printf("signup failed for %q: %v", req.Username, err)
		respondWithError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID.String(),
		"username": user.Username,
	})
}

// HandleLogin handles POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	ip := middleware.ClientIP(r)
	if !h.loginLimiter.Allow(ip) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.loginService.Login(r.Context(), req.Username, req.Password, ip, r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		log.Printf("login failed for %q: %v", req.Username, err)
		respondWithError(w, http.StatusInternalServerError, "login failed")
		return
	}

	resp := loginResponse{
		Decision:  string(result.Decision),
		RiskScore: result.Score,
		Reasons:   result.Reasons,
		Token:     result.Token,
	}
	if result.AccessToken != "" {
		resp.AccessToken = result.AccessToken
		resp.TokenType = "bearer"
	}

	status := http.StatusOK
	if result.Decision == risk.DecisionBlock {
		status = http.StatusForbidden
	}
	respondJSON(w, status, resp)
}

// HandleCheckStatus handles GET /check_status/{token}.
func (h *AuthHandler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	result, err := h.loginService.CheckStatus(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "invalid or expired session")
			return
		}
		log.Printf("check status failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	resp := statusResponse{Status: string(result.Status)}
	if result.Status == model.StatusVerified {
		resp.AccessToken = result.AccessToken
		resp.TokenType = "bearer"
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleApprove handles POST /approve/{token}, the trusted-second-device
// side of the flow.
func (h *AuthHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	ip := middleware.ClientIP(r)
	if !h.approveLimiter.Allow(ip) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.loginService.Approve(r.Context(), token); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "invalid or expired session")
			return
		}
		log.Printf("approve failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "approval failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "session approved"})
}

// HandleDashboard handles GET /dashboard (protected).
func (h *AuthHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"user": username})
}

// HandleAudit handles GET /audit (protected). Privileged identities are
// filtered out of the listing; entries arrive newest first from the repo.
func (h *AuthHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auditRepo.ListRecent(r.Context(), auditPageSize)
	if err != nil {
		log.Printf("audit listing failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "audit listing failed")
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		if h.isPrivileged(e.Username) {
			continue
		}
		out = append(out, auditEntryResponse{
			Username:  e.Username,
			IP:        e.IP,
			RiskScore: e.Score,
			Reasons:   e.Reasons,
			Country:   e.Geo.Country,
			City:      e.Geo.City,
			ISP:       e.Geo.ISP,
			Timestamp: e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// respondJSON writes a JSON response body.
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
