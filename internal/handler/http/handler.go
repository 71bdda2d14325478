package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/service"
	"shortlink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// LinkService is the link registry as the handlers use it
type LinkService interface {
	Create(ctx context.Context, in service.CreateLinkInput) (*domain.Link, error)
	Get(ctx context.Context, code, owner string) (*domain.Link, error)
	Update(ctx context.Context, code, owner string, in service.UpdateLinkInput) (*domain.Link, error)
	SetActive(ctx context.Context, code, owner string, active bool) (*domain.Link, error)
	Delete(ctx context.Context, code, owner string) error
	ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*domain.Link, int64, error)
	OwnerSummary(ctx context.Context, owner string) (*domain.OwnerSummary, error)
	RecentPublic(ctx context.Context) ([]*domain.Link, error)
	PurgeOwner(ctx context.Context, owner string) (int, error)
}

// RedirectService follows short links
type RedirectService interface {
	Visit(ctx context.Context, req service.VisitRequest) (*service.VisitResult, error)
}

// StatsService builds per-link analytics
type StatsService interface {
	LinkStats(ctx context.Context, code, requester, from, to string) (*service.StatsReport, error)
}

// HealthChecker is a dependency the readiness probe pings
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options configures a Handler
type Options struct {
	// BaseURL prefixes short codes in responses, e.g. "http://localhost:8080"
	BaseURL string
	// CountryHeader is the edge proxy header carrying the visitor country
	CountryHeader string
	SecureCookies bool
	// Checks are pinged by /health/ready, keyed by name
	Checks map[string]HealthChecker
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	links     LinkService
	redirects RedirectService
	stats     StatsService
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(links LinkService, redirects RedirectService, stats StatsService, logger *slog.Logger, opts Options) *Handler {
	return &Handler{
		links:     links,
		redirects: redirects,
		stats:     stats,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) log(c *gin.Context) *slog.Logger {
	return logger.FromContext(c.Request.Context(), h.logger)
}

// Request/Response DTOs. Responses never carry the password hash.

type CreateLinkRequest struct {
	URL         string `json:"url" binding:"required,weburl"`
	CustomCode  string `json:"custom_code,omitempty" binding:"omitempty,shortcode"`
	ExpiryDays  *int   `json:"expiry_days,omitempty" binding:"omitempty,min=1,max=365"`
	Title       string `json:"title,omitempty" binding:"max=200"`
	Description string `json:"description,omitempty" binding:"max=2000"`
	Tags        string `json:"tags,omitempty" binding:"max=500"`
	IsPrivate   bool   `json:"is_private"`
	Password    string `json:"password,omitempty" binding:"max=72"`
}

type UpdateLinkRequest struct {
	URL         *string `json:"url" binding:"omitempty,weburl"`
	ExpiryDays  *int    `json:"expiry_days" binding:"omitempty,min=1,max=365"`
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	Tags        *string `json:"tags" binding:"omitempty,max=500"`
	IsPrivate   *bool   `json:"is_private"`
	Password    *string `json:"password" binding:"omitempty,max=72"`
}

type SetStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type visitPasswordRequest struct {
	Password string `json:"password" form:"password"`
}

type CreateLinkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type LinkResponse struct {
	ID            string     `json:"id"`
	ShortCode     string     `json:"short_code"`
	ShortURL      string     `json:"short_url"`
	OriginalURL   string     `json:"original_url"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	IsActive      bool       `json:"is_active"`
	IsPrivate     bool       `json:"is_private"`
	HasPassword   bool       `json:"has_password"`
	ClickCount    int64      `json:"click_count"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsExpired     bool       `json:"is_expired"`
	DaysLeft      int        `json:"days_left"`
}

type PublicLinkResponse struct {
	ShortCode  string    `json:"short_code"`
	ShortURL   string    `json:"short_url"`
	Title      string    `json:"title,omitempty"`
	ClickCount int64     `json:"click_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type LinkListResponse struct {
	Links    []LinkResponse `json:"links"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type ClickInfo struct {
	ClickedAt   time.Time `json:"clicked_at"`
	DeviceClass string    `json:"device_class"`
	Browser     string    `json:"browser"`
	OS          string    `json:"operating_system,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	City        string    `json:"city,omitempty"`
	Referer     string    `json:"referer,omitempty"`
}

type StatsResponse struct {
	Link             LinkResponse          `json:"link"`
	From             string                `json:"from"`
	To               string                `json:"to"`
	TotalClicks      int64                 `json:"total_clicks"`
	RangeClicks      int64                 `json:"range_clicks"`
	UniqueVisitors   int64                 `json:"unique_visitors"`
	Daily            []*domain.DailyRollup `json:"daily"`
	Devices          []domain.Share        `json:"devices"`
	Browsers         []domain.Share        `json:"browsers"`
	OperatingSystems []domain.Share        `json:"operating_systems"`
	Countries        []domain.Share        `json:"countries"`
	Hourly           [24]int64             `json:"hourly"`
	Weekday          [7]int64              `json:"weekday"`
	RecentClicks     []ClickInfo           `json:"recent_clicks"`
}

func (h *Handler) shortURL(code string) string {
	return fmt.Sprintf("%s/%s", h.opts.BaseURL, code)
}

func (h *Handler) toLinkResponse(link *domain.Link) LinkResponse {
	now := h.now()
	return LinkResponse{
		ID:            link.ID,
		ShortCode:     link.ShortCode,
		ShortURL:      h.shortURL(link.ShortCode),
		OriginalURL:   link.OriginalURL,
		Title:         link.Title,
		Description:   link.Description,
		Tags:          link.TagList(),
		IsActive:      link.IsActive,
		IsPrivate:     link.IsPrivate,
		HasPassword:   link.PasswordHash != "",
		ClickCount:    link.ClickCount,
		LastClickedAt: link.LastClickedAt,
		CreatedAt:     link.CreatedAt,
		UpdatedAt:     link.UpdatedAt,
		ExpiresAt:     link.ExpiresAt,
		IsExpired:     link.IsExpired(now),
		DaysLeft:      link.DaysLeft(now),
	}
}

// CreateLink handles POST /api/v1/links. Anonymous callers get an unowned
// link.
func (h *Handler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	in := service.CreateLinkInput{
		Destination: req.URL,
		CustomCode:  req.CustomCode,
		ExpiryDays:  req.ExpiryDays,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		IsPrivate:   req.IsPrivate,
		Password:    req.Password,
	}
	if owner := ownerID(c); owner != "" {
		in.OwnerID = &owner
	}

	link, err := h.links.Create(c.Request.Context(), in)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, CreateLinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    h.shortURL(link.ShortCode),
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}, "Link created successfully")
}

// ListLinks handles GET /api/v1/links?page=&page_size=
func (h *Handler) ListLinks(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer")
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "page_size must be between 1 and 100")
		return
	}

	links, total, err := h.links.ListByOwner(c.Request.Context(), ownerID(c), page, pageSize)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := LinkListResponse{
		Links:    make([]LinkResponse, 0, len(links)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, link := range links {
		resp.Links = append(resp.Links, h.toLinkResponse(link))
	}
	respondSuccess(c, http.StatusOK, resp, "")
}

// GetLink handles GET /api/v1/links/:code
func (h *Handler) GetLink(c *gin.Context) {
	link, err := h.links.Get(c.Request.Context(), c.Param("code"), ownerID(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, h.toLinkResponse(link), "")
}

// UpdateLink handles PATCH /api/v1/links/:code
func (h *Handler) UpdateLink(c *gin.Context) {
	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	link, err := h.links.Update(c.Request.Context(), c.Param("code"), ownerID(c), service.UpdateLinkInput{
		Destination: req.URL,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		IsPrivate:   req.IsPrivate,
		Password:    req.Password,
		ExpiryDays:  req.ExpiryDays,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, h.toLinkResponse(link), "Link updated successfully")
}

// SetLinkStatus handles PUT /api/v1/links/:code/status
func (h *Handler) SetLinkStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	link, err := h.links.SetActive(c.Request.Context(), c.Param("code"), ownerID(c), *req.Active)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	message := "Link deactivated"
	if link.IsActive {
		message = "Link activated"
	}
	respondSuccess(c, http.StatusOK, h.toLinkResponse(link), message)
}

// DeleteLink handles DELETE /api/v1/links/:code
func (h *Handler) DeleteLink(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), c.Param("code"), ownerID(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLinkStats handles GET /api/v1/links/:code/stats?from=&to=
func (h *Handler) GetLinkStats(c *gin.Context) {
	report, err := h.stats.LinkStats(c.Request.Context(), c.Param("code"), ownerID(c), c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := StatsResponse{
		Link:             h.toLinkResponse(report.Link),
		From:             report.From,
		To:               report.To,
		TotalClicks:      report.TotalClicks,
		RangeClicks:      report.RangeClicks,
		UniqueVisitors:   report.UniqueVisitors,
		Daily:            report.Daily,
		Devices:          report.Devices,
		Browsers:         report.Browsers,
		OperatingSystems: report.OperatingSystems,
		Countries:        report.Countries,
		Hourly:           report.Hourly,
		Weekday:          report.Weekday,
		RecentClicks:     make([]ClickInfo, 0, len(report.Recent)),
	}
	for _, e := range report.Recent {
		resp.RecentClicks = append(resp.RecentClicks, ClickInfo{
			ClickedAt:   e.ClickedAt,
			DeviceClass: string(e.DeviceClass),
			Browser:     string(e.Browser),
			OS:          e.OperatingSystem,
			CountryCode: e.CountryCode,
			City:        e.City,
			Referer:     e.Referer,
		})
	}
	respondSuccess(c, http.StatusOK, resp, "")
}

// OwnerSummary handles GET /api/v1/me/summary
func (h *Handler) OwnerSummary(c *gin.Context) {
	summary, err := h.links.OwnerSummary(c.Request.Context(), ownerID(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, summary, "")
}

// PurgeLinks handles DELETE /api/v1/me/links
func (h *Handler) PurgeLinks(c *gin.Context) {
	n, err := h.links.PurgeOwner(c.Request.Context(), ownerID(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": n}, "Links deleted")
}

// RecentPublic handles GET /api/v1/public/recent
func (h *Handler) RecentPublic(c *gin.Context) {
	links, err := h.links.RecentPublic(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := make([]PublicLinkResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, PublicLinkResponse{
			ShortCode:  link.ShortCode,
			ShortURL:   h.shortURL(link.ShortCode),
			Title:      link.Title,
			ClickCount: link.ClickCount,
			CreatedAt:  link.CreatedAt,
		})
	}
	respondSuccess(c, http.StatusOK, resp, "")
}

// grantCookie names the per-link access grant cookie
func grantCookie(code string) string {
	return "sl_grant_" + code
}

// Visit handles GET and POST /:code. POST submits the password of a private
// link as a form field or JSON body.
func (h *Handler) Visit(c *gin.Context) {
	code := c.Param("code")

	req := service.VisitRequest{
		Code:      code,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		SessionID: sessionID(c),
	}
	if h.opts.CountryHeader != "" {
		req.CountryHint = c.GetHeader(h.opts.CountryHeader)
	}
	if grant, err := c.Cookie(grantCookie(code)); err == nil {
		req.Grant = grant
	}

	status := http.StatusFound
	if c.Request.Method == http.MethodPost {
		var body visitPasswordRequest
		b := binding.Form
		if c.ContentType() == binding.MIMEJSON {
			b = binding.JSON
		}
		if err := c.ShouldBindWith(&body, b); err != nil {
			respondBindError(c, err)
			return
		}
		req.Password = &body.Password
		status = http.StatusSeeOther
	}

	res, err := h.redirects.Visit(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if res.Grant != "" {
		maxAge := int(res.GrantExpiresAt.Sub(h.now()).Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(grantCookie(code), res.Grant, maxAge, "/"+code, "", h.opts.SecureCookies, true)
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(status, res.Destination)
}

// Live handles GET /health/live
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// Ready handles GET /health/ready. Every configured dependency must answer a
// ping within two seconds.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.opts.Checks))
	for name, check := range h.opts.Checks {
		if err := check.Ping(ctx); err != nil {
			h.log(c).Warn("readiness check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}
