// Package dataapi is the HTTP client for the school data service that holds
// exams, academic years, classes, subjects and exam schedules.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"examdesk/internal/metrics"
	"examdesk/internal/model"
	"examdesk/internal/timecalc"
)

const cachePrefix = "examdesk:"

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64 // <= 0 disables limiting
	Burst         int
}

// Client calls the school data service. Reference lists can be cached in
// Redis; exam schedules are always fetched fresh.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
	Detail  string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("http %d", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the service.
func IsConflict(err error) bool {
	return statusOf(err) == http.StatusConflict
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// NewClient constructs a client for the service at opts.BaseURL.
func NewClient(opts Options, logger *zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, opts.Burst),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for reference lists.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListExams returns all exams.
func (c *Client) ListExams(ctx context.Context) ([]model.Exam, error) {
	var out []model.Exam
	err := c.cachedGet(ctx, "list_exams", c.baseURL+"/api/exams", "exams", &out)
	return out, err
}

// ListAcademicYears returns all academic years.
func (c *Client) ListAcademicYears(ctx context.Context) ([]model.AcademicYear, error) {
	var out []model.AcademicYear
	err := c.cachedGet(ctx, "list_academic_years", c.baseURL+"/api/academic-years", "academic_years", &out)
	return out, err
}

// ListClasses returns all class sections.
func (c *Client) ListClasses(ctx context.Context) ([]model.ClassSection, error) {
	var out []model.ClassSection
	err := c.cachedGet(ctx, "list_classes", c.baseURL+"/api/classes", "classes", &out)
	return out, err
}

// ListSubjects returns the subjects of one class.
func (c *Client) ListSubjects(ctx context.Context, classID string) ([]model.Subject, error) {
	endpoint := fmt.Sprintf("%s/api/classes/%s/subjects", c.baseURL, url.PathEscape(classID))
	var out []model.Subject
	if err := c.cachedGet(ctx, "list_subjects", endpoint, "subjects:"+classID, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ClassID == "" {
			out[i].ClassID = classID
		}
	}
	return out, nil
}

// ListSchedules returns persisted exam slots matching the filter.
// Omitting ClassID lists every class.
func (c *Client) ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]model.PersistedSlot, error) {
	q := url.Values{}
	if filter.ExamID != "" {
		q.Set("exam_id", filter.ExamID)
	}
	if filter.ClassID != "" {
		q.Set("class_id", filter.ClassID)
	}
	if filter.AcademicYearID != "" {
		q.Set("academic_year_id", filter.AcademicYearID)
	}
	endpoint := c.baseURL + "/api/exam-schedules"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var wrap envelope[[]model.PersistedSlot]
	if err := c.doGet(ctx, "list_schedules", endpoint, &wrap); err != nil {
		return nil, err
	}
	return normalizeSlots(wrap.Data), nil
}

// CreateSchedules submits one batch and returns the created slots.
func (c *Client) CreateSchedules(ctx context.Context, payload model.Payload) ([]model.PersistedSlot, error) {
	var wrap envelope[[]model.PersistedSlot]
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	if err := c.doJSON(ctx, "create_schedules", http.MethodPost, c.baseURL+"/api/exam-schedules", payload, headers, &wrap); err != nil {
		return nil, err
	}
	return normalizeSlots(wrap.Data), nil
}

// normalizeSlots rewrites SQL-style "HH:MM:SS" times to "HH:MM".
func normalizeSlots(slots []model.PersistedSlot) []model.PersistedSlot {
	for i := range slots {
		slots[i].StartTime = timecalc.Normalize(slots[i].StartTime)
		slots[i].EndTime = timecalc.Normalize(slots[i].EndTime)
	}
	return slots
}

// DeleteSchedule removes one persisted slot.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/api/exam-schedules/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, "delete_schedule", nil)
}

// HealthCheck checks if the data service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, "health", nil)
}

func (c *Client) cachedGet(ctx context.Context, op, endpoint, cacheKey string, out any) error {
	var wrap envelope[json.RawMessage]
	if c.readCache(ctx, cacheKey, &wrap) {
		if err := json.Unmarshal(wrap.Data, out); err == nil {
			return nil
		}
	}

	if err := c.doGet(ctx, op, endpoint, &wrap); err != nil {
		return err
	}
	if err := json.Unmarshal(wrap.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	c.writeCache(ctx, cacheKey, wrap)
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cachePrefix+key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, body any, headers map[string]string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	c.addHeaders(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteCall(op, "error", time.Since(started).Seconds())
		c.logger.Warn().Err(err).Str("op", op).Msg("data service call failed")
		return err
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteCall(op, fmt.Sprintf("%d", resp.StatusCode), time.Since(started).Seconds())

	if resp.StatusCode >= 300 {
		serr := &StatusError{Status: resp.StatusCode}
		var body errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, &body); err == nil {
			serr.Message = body.Error
			if serr.Message == "" {
				serr.Message = body.Message
			}
			serr.Detail = body.Detail
		} else if len(raw) > 0 {
			serr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("op", op).Str("message", serr.Message).Msg("data service returned error")
		return serr
	}

	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(started)).Msg("data service call")
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
}
