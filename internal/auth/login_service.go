package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/riskguard/server/internal/model"
	"github.com/riskguard/server/internal/repo"
	"github.com/riskguard/server/internal/risk"
	"github.com/riskguard/server/internal/session"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password; callers must not distinguish the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// LoginResult is the outcome of a credential-valid login attempt.
type LoginResult struct {
	Decision risk.Decision
	Score    int
	Reasons  []string

	// Token is the approval-session handle; empty when the attempt was
	// blocked.
	Token string

	// AccessToken is set when the session is already verified (low-risk
	// admit or privileged identity), so the caller can proceed without the
	// out-of-band step.
	AccessToken string
}

// StatusResult reports an approval session's state; AccessToken is set once
// the session is verified.
type StatusResult struct {
	Status      model.SessionStatus
	AccessToken string
}

// LoginService orchestrates the login flow: credential check, failed-attempt
// tracking, risk scoring, audit, and the approval-session handoff.
type LoginService struct {
	users      repo.UserRepo
	locations  repo.LocationRepo
	attempts   repo.AttemptRepo
	audit      repo.AuditRepo
	engine     *risk.Engine
	lifecycle  *session.Lifecycle
	jwtService *JWTService
	thresholds risk.Thresholds
	sessionTTL int
}

// NewLoginService creates a login service.
func NewLoginService(
	users repo.UserRepo,
	locations repo.LocationRepo,
	attempts repo.AttemptRepo,
	audit repo.AuditRepo,
	engine *risk.Engine,
	lifecycle *session.Lifecycle,
	jwtService *JWTService,
	thresholds risk.Thresholds,
	sessionTTLSeconds int,
) *LoginService {
	return &LoginService{
		users:      users,
		locations:  locations,
		attempts:   attempts,
		audit:      audit,
		engine:     engine,
		lifecycle:  lifecycle,
		jwtService: jwtService,
		thresholds: thresholds,
		sessionTTL: sessionTTLSeconds,
	}
}

// SignUp registers a new account with a bcrypt-hashed password.
func (s *LoginService) SignUp(ctx context.Context, username, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, repo.ErrUserExists) {
			return model.User{}, repo.ErrUserExists
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks credentials, scores the attempt, records it, and hands back
// the decision plus an approval token when one was created.
//
// Ordering matters: the failure streak is read before it is reset, the score
// sees the streak as it stood when the correct password arrived, and the
// reset happens only after scoring.
func (s *LoginService) Login(ctx context.Context, username, password, ip, userAgent string) (LoginResult, error) {
	if err := s.verifyPassword(ctx, username, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if _, incErr := s.attempts.Increment(ctx, username); incErr != nil {
				return LoginResult{}, fmt.Errorf("record failed attempt: %w", incErr)
			}
		}
		return LoginResult{}, err
	}

	priorFailures, err := s.attempts.Get(ctx, username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load failed attempts: %w", err)
	}
	history, err := s.locations.ListByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load known locations: %w", err)
	}

	assessment := s.engine.Evaluate(ctx, risk.Input{
		Username:       username,
		IP:             ip,
		UserAgent:      userAgent,
		FailedAttempts: priorFailures,
		History:        history,
	})

	if err := s.audit.Append(ctx, model.AuditEntry{
		Username: username,
		IP:       ip,
		Score:    assessment.Score,
		Reasons:  assessment.Reasons,
		Geo:      assessment.Geo,
	}); err != nil {
		return LoginResult{}, fmt.Errorf("record audit entry: %w", err)
	}

	if err := s.attempts.Reset(ctx, username); err != nil {
		return LoginResult{}, fmt.Errorf("reset failed attempts: %w", err)
	}

	result := LoginResult{
		Decision: risk.Decide(assessment.Score, s.thresholds),
		Score:    assessment.Score,
		Reasons:  assessment.Reasons,
	}
	if result.Decision == risk.DecisionBlock {
		return result, nil
	}

	token, err := s.lifecycle.Create(ctx, username, ip, s.sessionTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create approval session: %w", err)
	}
	result.Token = token

	// A low-risk admit needs no out-of-band step: approve the session in
	// place. Approval is what records the location as trusted, so admitted
	// logins keep the history current the same way scanned approvals do.
	if result.Decision == risk.DecisionAdmit {
		if err := s.lifecycle.Approve(ctx, token); err != nil {
			return LoginResult{}, fmt.Errorf("auto-approve session: %w", err)
		}
	}

	sess, err := s.lifecycle.Session(ctx, token)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load session: %w", err)
	}
	if sess.Verified {
		accessToken, err := s.jwtService.SignAccessToken(username)
		if err != nil {
			return LoginResult{}, err
		}
		result.AccessToken = accessToken
	}
	return result, nil
}

// Approve marks the approval session verified; session.ErrNotFound covers
// unknown and expired tokens alike.
func (s *LoginService) Approve(ctx context.Context, token string) error {
	return s.lifecycle.Approve(ctx, token)
}

// CheckStatus reports the session state, attaching an access token once it
// is verified so the waiting first device can proceed.
func (s *LoginService) CheckStatus(ctx context.Context, token string) (StatusResult, error) {
	sess, err := s.lifecycle.Session(ctx, token)
	if err != nil {
		return StatusResult{}, err
	}
	if !sess.Verified {
		return StatusResult{Status: model.StatusPending}, nil
	}
	accessToken, err := s.jwtService.SignAccessToken(sess.Username)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: model.StatusVerified, AccessToken: accessToken}, nil
}

// verifyPassword maps unknown users and wrong passwords to the same error.
func (s *LoginService) verifyPassword(ctx context.Context, username, password string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
