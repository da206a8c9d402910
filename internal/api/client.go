// Package api talks to the time-tracking backend. Every response is parsed
// and validated here so the rest of the program only sees domain types.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

const (
	requestIDHeader   = "X-Request-ID"
	idempotencyHeader = "X-Idempotency-Key"
	maxBodyBytes      = 1 << 20
)

// Client is a thin typed wrapper over the REST API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	userID  string
	timeout time.Duration
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout bounds every request, in addition to any context deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client for the API rooted at baseURL acting as userID
func NewClient(baseURL, token, userID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid API base URL %q", baseURL), err)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("user ID is required", nil)
	}

	c := &Client{
		baseURL: u,
		token:   token,
		userID:  userID,
		timeout: 15 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// UserID returns the user the client acts for
func (c *Client) UserID() string {
	return c.userID
}

// StartTimer creates a running timer on the server
func (c *Client) StartTimer(ctx context.Context, caseID, description string) (*domain.Timer, error) {
	req := &StartTimerRequest{UserID: c.userID, CaseID: caseID, Description: description}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var dto timerDTO
	err := c.do(ctx, request{
		op:     "start timer",
		method: http.MethodPost,
		path:   "/timers/start",
		body:   req,
	}, &dto)
	if err != nil {
		return nil, err
	}
	return c.timer(&dto, "start timer")
}

// PauseTimer asks the server to pause a running timer
func (c *Client) PauseTimer(ctx context.Context, timerID string) (*domain.Timer, error) {
	return c.timerCommand(ctx, "pause", timerID)
}

// ResumeTimer asks the server to resume a paused timer
func (c *Client) ResumeTimer(ctx context.Context, timerID string) (*domain.Timer, error) {
	return c.timerCommand(ctx, "resume", timerID)
}

func (c *Client) timerCommand(ctx context.Context, command, timerID string) (*domain.Timer, error) {
	var dto timerDTO
	err := c.do(ctx, request{
		op:        command + " timer",
		method:    http.MethodPost,
		path:      "/timers/" + url.PathEscape(timerID) + "/" + command,
		body:      &timerCommandRequest{UserID: c.userID},
		timerID:   timerID,
		lifecycle: true,
	}, &dto)
	if err != nil {
		return nil, err
	}
	return c.timer(&dto, command+" timer")
}

// ConvertTimer turns a timer into a time entry. The idempotency key makes a
// retried conversion return the original entry.
func (c *Client) ConvertTimer(ctx context.Context, timerID string, req *ConvertTimerRequest) (*domain.TimeEntry, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var dto entryDTO
	err := c.do(ctx, request{
		op:        "convert timer",
		method:    http.MethodPost,
		path:      "/timers/" + url.PathEscape(timerID) + "/convert",
		body:      req,
		headers:   map[string]string{idempotencyHeader: req.IdempotencyKey},
		timerID:   timerID,
		lifecycle: true,
	}, &dto)
	if err != nil {
		return nil, err
	}

	entry, err := dto.toDomain()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "server returned an invalid time entry")
	}
	if entry.TimerID == "" {
		entry.TimerID = timerID
	}
	return entry, nil
}

// DiscardTimer deletes a timer without creating an entry
func (c *Client) DiscardTimer(ctx context.Context, timerID string) error {
	return c.do(ctx, request{
		op:        "discard timer",
		method:    http.MethodDelete,
		path:      "/timers/" + url.PathEscape(timerID),
		query:     url.Values{"userId": {c.userID}},
		timerID:   timerID,
		lifecycle: true,
	}, nil)
}

// ListActive returns every running or paused timer of the user
func (c *Client) ListActive(ctx context.Context) ([]*domain.Timer, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		op:     "list active timers",
		method: http.MethodGet,
		path:   "/timers/user/" + url.PathEscape(c.userID) + "/active",
	}, &raw)
	if err != nil {
		return nil, err
	}

	var dtos []timerDTO
	if err := decodeList(raw, "timers", &dtos); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "malformed active timer list")
	}

	timers := make([]*domain.Timer, 0, len(dtos))
	for i := range dtos {
		t, err := c.timer(&dtos[i], "list active timers")
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, nil
}

// ListRates returns every billing rate that could apply to the user
func (c *Client) ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error) {
	if userID == "" {
		userID = c.userID
	}

	var raw json.RawMessage
	err := c.do(ctx, request{
		op:     "list billing rates",
		method: http.MethodGet,
		path:   "/billing-rates",
		query:  url.Values{"userId": {userID}},
	}, &raw)
	if err != nil {
		return nil, err
	}

	var dtos []rateDTO
	if err := decodeList(raw, "rates", &dtos); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "malformed billing rate list")
	}

	rates := make([]*domain.BillingRate, 0, len(dtos))
	for i := range dtos {
		r, err := dtos[i].toDomain()
		if err != nil {
			// a partial list could resolve a less specific rate
			return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote,
				fmt.Sprintf("malformed billing rate at index %d", i))
		}
		rates = append(rates, r)
	}
	return rates, nil
}

// CreateRate stores a new billing rate
func (c *Client) CreateRate(ctx context.Context, req *CreateRateRequest) (*domain.BillingRate, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var dto rateDTO
	err := c.do(ctx, request{
		op:     "create billing rate",
		method: http.MethodPost,
		path:   "/billing-rates",
		body:   req,
	}, &dto)
	if err != nil {
		return nil, err
	}

	rate, err := dto.toDomain()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "server returned an invalid billing rate")
	}
	return rate, nil
}

// MostSpecificRate asks the server which rate it would pick for the lookup
func (c *Client) MostSpecificRate(ctx context.Context, key domain.RateLookup) (*domain.BillingRate, error) {
	q := url.Values{"userId": {key.UserID}}
	if key.CaseID != "" {
		q.Set("caseId", key.CaseID)
	}
	if key.ClientID != "" {
		q.Set("clientId", key.ClientID)
	}
	if key.MatterTypeID != "" {
		q.Set("matterTypeId", key.MatterTypeID)
	}
	if !key.AsOf.IsZero() {
		q.Set("date", key.AsOf.Format(dateLayout))
	}

	var dto rateDTO
	err := c.do(ctx, request{
		op:         "most specific billing rate",
		method:     http.MethodGet,
		path:       "/billing-rates/most-specific",
		query:      q,
		resource:   "billing rate",
		resourceID: key.UserID,
	}, &dto)
	if err != nil {
		return nil, err
	}

	rate, err := dto.toDomain()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "server returned an invalid billing rate")
	}
	return rate, nil
}

// CaseProfile fetches the client, matter type, and multiplier settings of a case
func (c *Client) CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error) {
	var dto caseProfileDTO
	err := c.do(ctx, request{
		op:         "case billing profile",
		method:     http.MethodGet,
		path:       "/cases/" + url.PathEscape(caseID) + "/billing-profile",
		resource:   "case",
		resourceID: caseID,
	}, &dto)
	if err != nil {
		return nil, err
	}
	if dto.CaseID == "" {
		dto.CaseID = wireID(caseID)
	}

	profile, err := dto.toDomain()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, "server returned an invalid case profile")
	}
	return profile, nil
}

func (c *Client) timer(dto *timerDTO, op string) (*domain.Timer, error) {
	t, err := dto.toDomain()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeRemote, op+": server returned an invalid timer")
	}
	return t, nil
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    interface{}
	headers map[string]string

	// lifecycle commands map 400 and 409 to a state conflict on timerID
	timerID   string
	lifecycle bool

	resource   string
	resourceID string
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrorTypeValidation, "failed to encode "+r.op+" request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeValidation, "failed to build "+r.op+" request")
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", r.op).Str("request_id", requestID).Msg("request failed")
		return c.transportError(ctx, r.op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.transportError(ctx, r.op, err)
	}

	c.log.Debug().
		Str("op", r.op).
		Str("method", r.method).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Str("request_id", requestID).
		Msg("api call")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(payload)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return apperrors.WrapError(err, apperrors.ErrorTypeRemote, "malformed "+r.op+" response")
		}
		return nil
	}
	return statusError(r, resp.StatusCode, payload)
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		timeout := c.timeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		appErr := apperrors.NewTimeoutError(op, timeout.String())
		appErr.Cause = err
		return appErr
	}
	return apperrors.NewNetworkError(op, err)
}

func statusError(r request, status int, payload []byte) error {
	var eb errorBody
	_ = json.Unmarshal(payload, &eb)
	detail := eb.Message
	if detail == "" {
		detail = strings.TrimSpace(string(payload))
	}

	switch {
	case status == http.StatusNotFound:
		resource, id := r.resource, r.resourceID
		if r.timerID != "" {
			resource, id = "timer", r.timerID
		}
		if resource == "" {
			resource, id = r.op, r.path
		}
		return apperrors.NewNotFoundError(resource, id)

	case r.lifecycle && (status == http.StatusConflict ||
		(status == http.StatusBadRequest && !isValidationCode(eb.Code))):
		return apperrors.NewStateConflictError(r.op, r.timerID, errors.New(detail))

	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.NewValidationError(fmt.Sprintf("%s rejected: %s", r.op, detail), nil)

	default:
		return apperrors.NewRemoteError(r.op, status, detail)
	}
}

func isValidationCode(code string) bool {
	code = strings.ToUpper(code)
	return strings.HasPrefix(code, "VALIDATION") || code == "INVALID_ARGUMENT"
}

// decodeList accepts a bare array or an object wrapping it under key or "data"
func decodeList(raw json.RawMessage, key string, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	for _, k := range []string{key, "data", "items"} {
		if inner, ok := wrapper[k]; ok {
			return decodeList(inner, key, out)
		}
	}
	return fmt.Errorf("expected a list under %q", key)
}
