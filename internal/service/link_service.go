package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shortlink/internal/auth"
	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"
	"shortlink/pkg/validator"
)

// LinkCache is the read-through cache in front of the link table.
// Failures stay inside the cache; callers never see them.
type LinkCache interface {
	Get(ctx context.Context, code string) (*domain.Link, bool)
	Set(ctx context.Context, link *domain.Link)
	Invalidate(ctx context.Context, codes ...string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.Link, bool) { return nil, false }
func (nopCache) Set(context.Context, *domain.Link)                {}
func (nopCache) Invalidate(context.Context, ...string)            {}

// sweepBatch bounds how many expired links one transaction deletes
const sweepBatch = 500

// RecentPublicLimit is how many links the public listing shows
const RecentPublicLimit = 10

// CreateLinkInput describes a new link. ExpiryDays nil means the default.
type CreateLinkInput struct {
	Destination string
	OwnerID     *string
	CustomCode  string
	ExpiryDays  *int
	Title       string
	Description string
	Tags        string
	IsPrivate   bool
	Password    string
}

// UpdateLinkInput carries the fields an owner may change. Nil fields are left
// alone; an empty Password removes the password.
type UpdateLinkInput struct {
	Destination *string
	Title       *string
	Description *string
	Tags        *string
	IsPrivate   *bool
	Password    *string
	ExpiryDays  *int
}

// LinkServiceConfig holds the code generation settings
type LinkServiceConfig struct {
	// SelfHost is our own host; links pointing back at it are rejected.
	SelfHost    string
	CodeLength  int
	MaxAttempts int
}

// LinkService is the link registry: it creates, resolves and manages links
type LinkService struct {
	links    repository.LinkRepository
	cache    LinkCache
	cfg      LinkServiceConfig
	logger   *slog.Logger
	generate CodeGenerator
	now      func() time.Time
}

// NewLinkService creates a new link service. cache may be nil.
func NewLinkService(links repository.LinkRepository, cache LinkCache, cfg LinkServiceConfig, logger *slog.Logger) *LinkService {
	if cache == nil {
		cache = nopCache{}
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &LinkService{
		links:    links,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		generate: RandomCode,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates input and stores a new link.
//
// Code uniqueness is decided by the insert itself. A custom code that is
// taken fails with ErrCodeConflict; a generated one is redrawn up to
// MaxAttempts times before giving up with ErrCodeSpaceExhausted.
func (s *LinkService) Create(ctx context.Context, in CreateLinkInput) (*domain.Link, error) {
	destination := strings.TrimSpace(in.Destination)
	if err := validator.ValidateURL(destination, s.cfg.SelfHost); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	expiryDays := domain.DefaultExpiryDays
	if in.ExpiryDays != nil {
		if err := validateExpiry(*in.ExpiryDays); err != nil {
			return nil, err
		}
		expiryDays = *in.ExpiryDays
	}

	hash, err := hashIfSet(in.Password)
	if err != nil {
		return nil, err
	}

	build := func(code string) *domain.Link {
		link := domain.NewLink(code, destination, in.OwnerID, s.now(), expiryDays)
		link.Title = in.Title
		link.Description = in.Description
		link.Tags = normalizeTags(in.Tags)
		link.IsPrivate = in.IsPrivate
		link.PasswordHash = hash
		return link
	}

	if in.CustomCode != "" {
		if err := validator.ValidateShortCode(in.CustomCode); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCode, err)
		}
		link := build(in.CustomCode)
		if err := s.links.Create(ctx, link); err != nil {
			return nil, err
		}
		metrics.RecordLinkCreated(true)
		s.logger.InfoContext(ctx, "link created", "short_code", link.ShortCode, "custom", true)
		return link, nil
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		code, err := s.generate(s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		link := build(code)
		err = s.links.Create(ctx, link)
		if err == nil {
			metrics.RecordLinkCreated(false)
			s.logger.InfoContext(ctx, "link created", "short_code", code, "attempts", attempt)
			return link, nil
		}
		if !errors.Is(err, domain.ErrCodeConflict) {
			return nil, err
		}
		metrics.RecordCodeCollision()
		s.logger.DebugContext(ctx, "generated code collided", "short_code", code, "attempt", attempt)
	}

	s.logger.ErrorContext(ctx, "short code space exhausted", "attempts", s.cfg.MaxAttempts)
	return nil, fmt.Errorf("%w after %d attempts", domain.ErrCodeSpaceExhausted, s.cfg.MaxAttempts)
}

// Resolve looks a link up by code, cache first. It does not look at expiry or
// the active flag.
func (s *LinkService) Resolve(ctx context.Context, code string) (*domain.Link, error) {
	if link, ok := s.cache.Get(ctx, code); ok {
		return link, nil
	}

	link, err := s.links.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, link)
	return link, nil
}

// IsExpired reports whether link is past its expiry at the service clock
func (s *LinkService) IsExpired(link *domain.Link) bool {
	return link.IsExpired(s.now())
}

// owned resolves code from the database and checks that owner owns it
func (s *LinkService) owned(ctx context.Context, code, owner string) (*domain.Link, error) {
	link, err := s.links.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.OwnedBy(owner) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, code)
	}
	return link, nil
}

// Get returns one of owner's links
func (s *LinkService) Get(ctx context.Context, code, owner string) (*domain.Link, error) {
	return s.owned(ctx, code, owner)
}

// SetActive enables or disables one of owner's links
func (s *LinkService) SetActive(ctx context.Context, code, owner string, active bool) (*domain.Link, error) {
	link, err := s.owned(ctx, code, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.links.SetActive(ctx, link.ID, active, now); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, code)

	link.IsActive = active
	link.UpdatedAt = now
	s.logger.InfoContext(ctx, "link status changed", "short_code", code, "active", active)
	return link, nil
}

// Update applies an owner edit
func (s *LinkService) Update(ctx context.Context, code, owner string, in UpdateLinkInput) (*domain.Link, error) {
	link, err := s.owned(ctx, code, owner)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if in.Destination != nil {
		destination := strings.TrimSpace(*in.Destination)
		if err := validator.ValidateURL(destination, s.cfg.SelfHost); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
		}
		link.OriginalURL = destination
	}
	if in.ExpiryDays != nil {
		if err := validateExpiry(*in.ExpiryDays); err != nil {
			return nil, err
		}
		expiresAt := now.Add(time.Duration(*in.ExpiryDays) * 24 * time.Hour)
		link.ExpiresAt = &expiresAt
	}
	if in.Password != nil {
		hash, err := hashIfSet(*in.Password)
		if err != nil {
			return nil, err
		}
		link.PasswordHash = hash
	}
	if in.Title != nil {
		link.Title = *in.Title
	}
	if in.Description != nil {
		link.Description = *in.Description
	}
	if in.Tags != nil {
		link.Tags = normalizeTags(*in.Tags)
	}
	if in.IsPrivate != nil {
		link.IsPrivate = *in.IsPrivate
	}
	link.UpdatedAt = now

	if err := s.links.Update(ctx, link); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, code)
	return link, nil
}

// Delete removes one of owner's links with all its analytics
func (s *LinkService) Delete(ctx context.Context, code, owner string) error {
	link, err := s.owned(ctx, code, owner)
	if err != nil {
		return err
	}
	if err := s.links.Delete(ctx, link.ID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, code)
	s.logger.InfoContext(ctx, "link deleted", "short_code", code)
	return nil
}

// ListByOwner returns a page of owner's links, newest first
func (s *LinkService) ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*domain.Link, int64, error) {
	page = max(page, 1)
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.links.ListByOwner(ctx, owner, pageSize, (page-1)*pageSize)
}

// OwnerSummary returns owner's dashboard totals
func (s *LinkService) OwnerSummary(ctx context.Context, owner string) (*domain.OwnerSummary, error) {
	return s.links.Summary(ctx, owner, s.now())
}

// RecentPublic lists the newest public links that still redirect
func (s *LinkService) RecentPublic(ctx context.Context) ([]*domain.Link, error) {
	return s.links.RecentPublic(ctx, s.now(), RecentPublicLimit)
}

// PurgeOwner deletes every link of owner and returns how many went
func (s *LinkService) PurgeOwner(ctx context.Context, owner string) (int, error) {
	codes, err := s.links.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, codes...)
	s.logger.InfoContext(ctx, "owner links purged", "owner_id", owner, "count", len(codes))
	return len(codes), nil
}

// SweepExpired deletes links that expired before now, in batches
func (s *LinkService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		codes, err := s.links.DeleteExpired(ctx, now, sweepBatch)
		if err != nil {
			return total, err
		}
		s.cache.Invalidate(ctx, codes...)
		total += len(codes)
		if len(codes) < sweepBatch {
			break
		}
	}
	metrics.RecordSwept(total)
	return total, nil
}

func validateExpiry(days int) error {
	if days < 1 || days > domain.MaxExpiryDays {
		return fmt.Errorf("%w: must be between 1 and %d days, got %d", domain.ErrInvalidExpiry, domain.MaxExpiryDays, days)
	}
	return nil
}

func hashIfSet(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	return hash, nil
}

func normalizeTags(tags string) string {
	link := domain.Link{Tags: tags}
	return strings.Join(link.TagList(), ",")
}
