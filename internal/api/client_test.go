package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api", "secret", "u1", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadInput(t *testing.T) {
	_, err := NewClient("not a url", "", "u1")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = NewClient("http://localhost", "", " ")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestClient_StartTimerSendsHeadersAndParses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/timers/start", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get(requestIDHeader))
		assert.NoError(t, err)

		var body StartTimerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body.UserID)
		assert.Equal(t, "case-7", body.CaseID)

		_, _ = io.WriteString(w, `{"id": 42, "userId": "u1", "caseId": "case-7",
			"startTime": "2024-06-12T09:00:00Z", "isActive": true, "accumulatedSeconds": 0}`)
	})

	timer, err := c.StartTimer(context.Background(), "case-7", "drafting")
	require.NoError(t, err)
	assert.Equal(t, "42", timer.ID)
	assert.Equal(t, domain.TimerStateRunning, timer.State())
	require.NotNil(t, timer.StartTime)
	assert.True(t, timer.StartTime.Equal(time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)))
}

func TestClient_StartTimerValidatesLocally(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := c.StartTimer(context.Background(), "", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestClient_PausedTimerDropsStartTime(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timers/t1/pause", r.URL.Path)
		_, _ = io.WriteString(w, `{"id": "t1", "userId": "u1", "caseId": "c1",
			"startTime": "2024-06-12T09:00:00Z", "isActive": false, "accumulatedSeconds": 600}`)
	})

	timer, err := c.PauseTimer(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, timer.StartTime)
	assert.Equal(t, domain.TimerStatePaused, timer.State())
	assert.Equal(t, int64(600), timer.AccumulatedSeconds)
}

func TestClient_RejectsRunningTimerWithoutStart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "t1", "userId": "u1", "caseId": "c1", "isActive": true}`)
	})

	_, err := c.ResumeTimer(context.Background(), "t1")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeRemote))
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperrors.ErrorType
	}{
		{"conflict", http.StatusConflict, `{"message":"timer is not running"}`, apperrors.ErrorTypeStateConflict},
		{"bad request on lifecycle", http.StatusBadRequest, `{"message":"timer already paused"}`, apperrors.ErrorTypeStateConflict},
		{"validation code", http.StatusBadRequest, `{"code":"VALIDATION_FAILED","message":"bad user"}`, apperrors.ErrorTypeValidation},
		{"not found", http.StatusNotFound, ``, apperrors.ErrorTypeNotFound},
		{"server error", http.StatusBadGateway, `upstream down`, apperrors.ErrorTypeRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.PauseTimer(context.Background(), "t1")
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, tt.want), "got %v", err)
		})
	}
}

func TestClient_BadRequestOutsideLifecycleIsValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"amount too large"}`)
	})

	_, err := c.CreateRate(context.Background(), &CreateRateRequest{
		RateType: "standard", Amount: "300", EffectiveDate: "2024-01-01",
	})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestClient_TimeoutIsRecoverable(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.PauseTimer(ctx, "t1")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeTimeout), "got %v", err)
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, "", "u1")
	require.NoError(t, err)

	_, err = c.ListActive(context.Background())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNetwork), "got %v", err)
}

func TestClient_ConvertSendsIdempotencyKey(t *testing.T) {
	key := uuid.NewString()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timers/t1/convert", r.URL.Path)
		assert.Equal(t, key, r.Header.Get(idempotencyHeader))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1.5", body["hours"])
		assert.Equal(t, "300", body["rate"])
		assert.NotContains(t, body, "IdempotencyKey")

		_, _ = io.WriteString(w, `{"id": "e1", "userId": "u1", "caseId": "c1", "date": "2024-06-12",
			"description": "review", "hours": "1.5", "rate": {"amount": 300}, "billable": true, "status": "DRAFT"}`)
	})

	entry, err := c.ConvertTimer(context.Background(), "t1", &ConvertTimerRequest{
		Description:    "review",
		Date:           "2024-06-12",
		Hours:          "1.5",
		Rate:           "300",
		Billable:       true,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", entry.TimerID)
	assert.Equal(t, domain.EntryStatusDraft, entry.Status)
	assert.True(t, entry.Amount().Equal(decimal.NewFromInt(450)))
}

func TestClient_ConvertRequiresIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := c.ConvertTimer(context.Background(), "t1", &ConvertTimerRequest{
		Description: "review", Date: "2024-06-12", Hours: "1", Rate: "300",
	})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestClient_DiscardNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "u1", r.URL.Query().Get("userId"))
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.DiscardTimer(context.Background(), "t1")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestClient_ListActiveAcceptsWrappedList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timers/user/u1/active", r.URL.Path)
		_, _ = io.WriteString(w, `{"data": [
			{"id": "t1", "userId": "u1", "caseId": "c1", "isActive": false, "accumulatedSeconds": 30},
			{"id": "t2", "userId": "u1", "caseId": "c2", "isActive": true, "startTime": "2024-06-12T09:00:00Z"}
		]}`)
	})

	timers, err := c.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, timers, 2)
	assert.Equal(t, domain.TimerStatePaused, timers[0].State())
	assert.Equal(t, domain.TimerStateRunning, timers[1].State())
}

func TestClient_ListRatesParsesLooseAmounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("userId"))
		_, _ = io.WriteString(w, `[
			{"id": 1, "userId": "u1", "rateType": "standard", "amount": 250.10, "effectiveDate": "2024-01-01", "isActive": true},
			{"id": 2, "userId": "u1", "caseId": "c1", "rateType": "PREMIUM", "amount": "$1,200.00", "effectiveDate": "2024-01-01T00:00:00Z", "isActive": true},
			{"id": 3, "userId": "u1", "rateType": "standard", "amount": {"amount": "300"}, "effectiveDate": "2024-01-01", "endDate": "2024-12-31", "isActive": true}
		]`)
	})

	rates, err := c.ListRates(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rates, 3)

	assert.Equal(t, "250.1", rates[0].Amount.String())
	assert.Equal(t, domain.RateTypePremium, rates[1].RateType)
	assert.Equal(t, "1200", rates[1].Amount.String())
	assert.Equal(t, "300", rates[2].Amount.String())
	require.NotNil(t, rates[2].EndDate)
}

func TestClient_ListRatesRejectsMalformedRate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id": 1, "userId": "u1", "rateType": "standard", "amount": "250", "effectiveDate": "2024-01-01", "isActive": true},
			{"id": 2, "userId": "u1", "rateType": "bogus", "amount": 1, "effectiveDate": "2024-01-01", "isActive": true}
		]`)
	})

	rates, err := c.ListRates(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, rates)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeRemote))
	assert.Contains(t, err.Error(), "index 1")
}

func TestClient_MostSpecificRateQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "u1", q.Get("userId"))
		assert.Equal(t, "c1", q.Get("caseId"))
		assert.Equal(t, "", q.Get("clientId"))
		assert.Equal(t, "2024-06-12", q.Get("date"))
		_, _ = io.WriteString(w, `{"id": "r1", "userId": "u1", "caseId": "c1", "rateType": "standard",
			"amount": "300", "effectiveDate": "2024-01-01", "isActive": true}`)
	})

	rate, err := c.MostSpecificRate(context.Background(), domain.RateLookup{
		UserID: "u1", CaseID: "c1", AsOf: time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", rate.ID)
}

func TestClient_CaseProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cases/c1/billing-profile", r.URL.Path)
		_, _ = io.WriteString(w, `{"clientId": "cl1", "matterTypeId": "m1", "rateMultipliers": {
			"weekendMultiplier": 1.5, "afterHoursMultiplier": "1.25", "allowMultipliers": true}}`)
	})

	profile, err := c.CaseProfile(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", profile.CaseID)
	assert.Equal(t, "cl1", profile.ClientID)
	assert.True(t, profile.Multipliers.AllowMultipliers)
	assert.Equal(t, "1.5", profile.Multipliers.WeekendMultiplier.String())
	assert.True(t, profile.Multipliers.EmergencyMultiplier.IsZero())
}
