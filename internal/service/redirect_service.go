package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shortlink/internal/auth"
	"shortlink/internal/config"
	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/ratelimit"
	"shortlink/internal/repository"
)

// LinkResolver finds links by code
type LinkResolver interface {
	Resolve(ctx context.Context, code string) (*domain.Link, error)
}

// GrantIssuer issues and checks password access grants
type GrantIssuer interface {
	IssueGrant(linkID, sessionID string) (string, time.Time, error)
	VerifyGrant(grant, linkID, sessionID string) error
}

// VisitRequest is one attempt to follow a short link. Password is nil when
// the visitor did not submit the password form. Grant is the token from an
// earlier successful password check, if any.
type VisitRequest struct {
	Code        string
	IP          string
	UserAgent   string
	Referer     string
	SessionID   string
	CountryHint string
	Password    *string
	Grant       string
}

// VisitResult tells the caller where to send the visitor. Grant is set when
// this visit passed a password check and should be remembered.
type VisitResult struct {
	Destination    string
	Grant          string
	GrantExpiresAt time.Time
	Recorded       bool
}

// visit states, used in logs
const (
	stateResolving   = "resolving"
	stateAccessCheck = "access_check"
	stateRecording   = "recording"
)

// RedirectService runs a visit through resolve, access check, recording and
// redirect
type RedirectService struct {
	resolver   LinkResolver
	tx         repository.Transactor
	links      repository.LinkRepository
	recorder   *ClickRecorder
	aggregator *Aggregator
	grants     GrantIssuer
	attempts   ratelimit.Limiter
	policy     string
	logger     *slog.Logger
	now        func() time.Time
}

// RedirectServiceDeps groups the collaborators of NewRedirectService
type RedirectServiceDeps struct {
	Resolver   LinkResolver
	Tx         repository.Transactor
	Links      repository.LinkRepository
	Recorder   *ClickRecorder
	Aggregator *Aggregator
	Grants     GrantIssuer
	// Attempts limits password tries per code and IP; nil disables it.
	Attempts ratelimit.Limiter
	// Policy is config.RecordingBestEffort or config.RecordingStrict.
	Policy string
	Logger *slog.Logger
}

// NewRedirectService creates a new redirect service
func NewRedirectService(d RedirectServiceDeps) *RedirectService {
	policy := d.Policy
	if policy == "" {
		policy = config.RecordingBestEffort
	}
	return &RedirectService{
		resolver:   d.Resolver,
		tx:         d.Tx,
		links:      d.Links,
		recorder:   d.Recorder,
		aggregator: d.Aggregator,
		grants:     d.Grants,
		attempts:   d.Attempts,
		policy:     policy,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Visit resolves req.Code, enforces expiry and password, records the click and
// returns the destination.
func (s *RedirectService) Visit(ctx context.Context, req VisitRequest) (*VisitResult, error) {
	now := s.now()
	log := s.logger.With("short_code", req.Code, "ip", req.IP)

	link, err := s.resolver.Resolve(ctx, req.Code)
	if err != nil {
		return nil, s.reject(ctx, log, stateResolving, err)
	}
	if !link.IsActive {
		return nil, s.reject(ctx, log, stateResolving, fmt.Errorf("%w: %s", domain.ErrLinkInactive, req.Code))
	}

	result := &VisitResult{Destination: link.OriginalURL}

	if link.IsExpired(now) {
		return nil, s.reject(ctx, log, stateAccessCheck, fmt.Errorf("%w: %s", domain.ErrLinkExpired, req.Code))
	}
	if link.RequiresPassword() {
		if err := s.checkPassword(ctx, link, req, result); err != nil {
			return nil, s.reject(ctx, log, stateAccessCheck, err)
		}
	}

	err = s.record(ctx, link, req, now)
	switch {
	case err == nil:
		result.Recorded = true
		metrics.RecordClickRecorded()
	case errors.Is(err, domain.ErrLinkInactive):
		// deactivated or deleted between resolve and record
		return nil, s.reject(ctx, log, stateRecording, err)
	case s.policy == config.RecordingStrict:
		metrics.RecordRecordingFailure()
		log.ErrorContext(ctx, "click recording failed, rejecting visit", "state", stateRecording, "error", err)
		metrics.RecordRedirect("storage_unavailable")
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	default:
		metrics.RecordRecordingFailure()
		log.ErrorContext(ctx, "click recording failed, redirecting anyway", "state", stateRecording, "error", err)
	}

	metrics.RecordRedirect("redirected")
	return result, nil
}

// checkPassword lets the visit through on a valid grant or a correct
// password. A correct password puts a fresh grant on result.
func (s *RedirectService) checkPassword(ctx context.Context, link *domain.Link, req VisitRequest, result *VisitResult) error {
	if req.Grant != "" && s.grants.VerifyGrant(req.Grant, link.ID, req.SessionID) == nil {
		return nil
	}
	if req.Password == nil {
		return fmt.Errorf("%w: %s", domain.ErrPasswordRequired, req.Code)
	}

	attemptKey := req.Code + ":" + req.IP
	if s.attempts != nil {
		allowed, _, _, err := s.attempts.Allow(ctx, attemptKey)
		if err != nil {
			s.logger.WarnContext(ctx, "password attempt limiter failed", "error", err)
		} else if !allowed {
			metrics.RecordRateLimited("password")
			return fmt.Errorf("%w: %s", domain.ErrTooManyAttempts, req.Code)
		}
	}

	if !auth.CheckPassword(link.PasswordHash, *req.Password) {
		return fmt.Errorf("%w: %s", domain.ErrBadPassword, req.Code)
	}
	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, attemptKey); err != nil {
			s.logger.WarnContext(ctx, "password attempt reset failed", "error", err)
		}
	}

	grant, expiresAt, err := s.grants.IssueGrant(link.ID, req.SessionID)
	if err != nil {
		return err
	}
	result.Grant = grant
	result.GrantExpiresAt = expiresAt
	return nil
}

// record bumps the link counter, appends the event and updates the rollup in
// one transaction
func (s *RedirectService) record(ctx context.Context, link *domain.Link, req VisitRequest, now time.Time) error {
	visit := Visit{
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Referer:     req.Referer,
		SessionID:   req.SessionID,
		CountryHint: req.CountryHint,
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.links.RecordVisit(ctx, link.ID, now); err != nil {
			return err
		}
		event, err := s.recorder.Record(ctx, link, visit, now)
		if err != nil {
			return err
		}
		return s.aggregator.ApplyClick(ctx, event)
	})
}

// reject logs and counts a refused visit, returning err unchanged
func (s *RedirectService) reject(ctx context.Context, log *slog.Logger, state string, err error) error {
	result := rejectionLabel(err)
	level := slog.LevelInfo
	if result == "error" {
		level = slog.LevelError
	}
	log.Log(ctx, level, "visit rejected", "state", state, "result", result, "error", err)
	metrics.RecordRedirect(result)
	return err
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrLinkInactive):
		return "inactive"
	case errors.Is(err, domain.ErrLinkNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLinkExpired):
		return "expired"
	case errors.Is(err, domain.ErrPasswordRequired):
		return "password_required"
	case errors.Is(err, domain.ErrBadPassword):
		return "bad_password"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "error"
	}
}
