package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/casetime/internal/app"
	"github.com/andy/casetime/internal/config"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

const twoTimers = `[
	{"id": "abc1", "userId": "u1", "caseId": "c1", "startTime": "2024-06-12T09:00:00Z", "isActive": true, "accumulatedSeconds": 0},
	{"id": "abc2", "userId": "u1", "caseId": "c2", "isActive": false, "accumulatedSeconds": 90}
]`

func newTestApp(t *testing.T, handler http.HandlerFunc) *app.App {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("CASETIME_API_TOKEN", "tok")
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.API.UserID = "u1"
	cfg.Cache.Enabled = false
	cfg.Log.File = filepath.Join(dir, "casetime.log")
	cfg.Billing.Timezone = "UTC"

	a, err := app.NewWithConfig(context.Background(), cfg, app.Options{FullScreen: true})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func runCommand(t *testing.T, a *app.App, args ...string) (string, error) {
	t.Helper()
	SetApp(a)
	t.Cleanup(func() { appInstance = nil })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTimerStart_PrintsServerTimer(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timers/start", r.URL.Path)
		_, _ = io.WriteString(w, `{"id": "t-100", "userId": "u1", "caseId": "c1",
			"startTime": "2024-06-12T09:00:00Z", "isActive": true, "accumulatedSeconds": 0,
			"description": "drafting motion"}`)
	})

	out, err := runCommand(t, a, "timer", "start", "c1", "drafting", "motion")
	require.NoError(t, err)
	assert.Contains(t, out, "Timer t-100 started on case c1")
	assert.Contains(t, out, "Description: drafting motion")
}

func TestTimerStatus_NoTimers(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timers/user/u1/active", r.URL.Path)
		_, _ = io.WriteString(w, `[]`)
	})

	out, err := runCommand(t, a, "timer", "status")
	require.NoError(t, err)
	assert.Equal(t, "No active timers\n", out)
}

func TestResolveTimerID(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, twoTimers)
	})
	SetApp(a)
	t.Cleanup(func() { appInstance = nil })
	ctx := context.Background()

	id, err := resolveTimerID(ctx, "abc2")
	require.NoError(t, err)
	assert.Equal(t, "abc2", id)

	_, err = resolveTimerID(ctx, "abc")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = resolveTimerID(ctx, "zzz")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestResolveTimerID_ServerDownPassesIDThrough(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if assert.NoError(t, err) {
			conn.Close()
		}
	})
	SetApp(a)
	t.Cleanup(func() { appInstance = nil })

	id, err := resolveTimerID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestParseWorkedAt(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := parseWorkedAt("2024-06-15T20:30:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 15, 20, 30, 0, 0, time.UTC)))

	got, err = parseWorkedAt("2024-06-15 19:00", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)))

	_, err = parseWorkedAt("yesterday", loc)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestUserError(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, plain, userError(plain))

	wrapped := userError(apperrors.NewValidationError("invalid --rate", errors.New("not a number")))
	assert.True(t, strings.HasSuffix(wrapped.Error(), ": not a number"), wrapped.Error())
}

func TestConfirmPrompt(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out strings.Builder
		assert.Equal(t, tt.want, confirmPrompt(strings.NewReader(tt.input), &out, "Reset?"), "input %q", tt.input)
		assert.Equal(t, "Reset? [y/N] ", out.String())
	}
}

func TestScopeLabel(t *testing.T) {
	assert.Equal(t, "default", scopeLabel(&domain.BillingRate{ID: "r1"}))
	assert.Equal(t, "client k1, matter m1", scopeLabel(&domain.BillingRate{ClientID: "k1", MatterTypeID: "m1"}))
}
