// Package testhelpers provides reusable testing utilities.
//
// This package contains:
// - HTTP test helpers (creating test servers, requests)
// - Sample data builders for patterns, actions and executions
// - Test fixtures loaders
// - Assertion helpers
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// ExecuteFunc runs the handler func and returns the response
func (ctx *HTTPTestContext) ExecuteFunc(handler http.HandlerFunc) *HTTPTestContext {
	handler(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d. Body: %s", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	body := ctx.Recorder.Body.String()
	if !containsString(body, substr) {
		ctx.T.Errorf("expected body to contain %q, got: %s", substr, body)
	}
	return ctx
}

// AssertHeader checks response header value
func (ctx *HTTPTestContext) AssertHeader(key, expected string) *HTTPTestContext {
	ctx.T.Helper()
	got := ctx.Recorder.Header().Get(key)
	if got != expected {
		ctx.T.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode JSON response: %v", err)
	}
	return ctx
}

// ========================================
// Test Fixture Helpers
// ========================================

// LoadFixture loads a test fixture file from tests/fixtures/
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	// Try both relative and absolute paths
	paths := []string{
		filepath.Join("tests", "fixtures", path),
		filepath.Join("..", "..", "tests", "fixtures", path),
		filepath.Join("..", "..", "..", "tests", "fixtures", path),
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data
		}
	}

	t.Fatalf("failed to load fixture %s", path)
	return nil
}

// LoadJSONFixture loads and unmarshals a JSON fixture
func LoadJSONFixture(t *testing.T, path string, v interface{}) {
	t.Helper()
	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal fixture %s: %v", path, err)
	}
}

// ========================================
// Sample Data Builders
// ========================================

// PatternBuilder builds detected patterns for testing
type PatternBuilder struct {
	pattern patterns.Pattern
}

// NewPatternBuilder creates a pattern builder with defaults
func NewPatternBuilder() *PatternBuilder {
	now := time.Now()
	return &PatternBuilder{
		pattern: patterns.Pattern{
			ID:               "stuck_workflow:000000000000",
			Type:             patterns.TypeStuckWorkflow,
			OrganizationID:   "test-org",
			Description:      "test pattern",
			Severity:         database.PatternSeverityMedium,
			AffectedEntities: []string{},
			Occurrences:      1,
			FirstDetectedAt:  now,
			LastDetectedAt:   now,
		},
	}
}

// WithType sets the pattern type
func (b *PatternBuilder) WithType(patternType string) *PatternBuilder {
	b.pattern.Type = patternType
	return b
}

// WithSeverity sets the severity
func (b *PatternBuilder) WithSeverity(severity database.PatternSeverity) *PatternBuilder {
	b.pattern.Severity = severity
	return b
}

// WithEntities sets the affected entities and recomputes the fingerprint
func (b *PatternBuilder) WithEntities(entities ...string) *PatternBuilder {
	b.pattern.AffectedEntities = entities
	b.pattern.ID = patterns.Fingerprint(b.pattern.OrganizationID, b.pattern.Type, entities)
	return b
}

// WithOccurrences sets the occurrence count
func (b *PatternBuilder) WithOccurrences(n int) *PatternBuilder {
	b.pattern.Occurrences = n
	return b
}

// WithDescription sets the description
func (b *PatternBuilder) WithDescription(description string) *PatternBuilder {
	b.pattern.Description = description
	return b
}

// Build returns the constructed pattern
func (b *PatternBuilder) Build() patterns.Pattern {
	return b.pattern
}

// ActionBuilder builds automated actions for testing
type ActionBuilder struct {
	action database.AutomatedAction
}

// NewActionBuilder creates an action builder with defaults
func NewActionBuilder() *ActionBuilder {
	return &ActionBuilder{
		action: database.AutomatedAction{
			OrganizationID:     "test-org",
			Name:               "test action",
			ActionType:         "notify",
			ActionConfig:       database.JSONB{},
			TriggerType:        database.TriggerTypePattern,
			TriggerPatternType: patterns.TypeStuckWorkflow,
			IsActive:           true,
		},
	}
}

// WithActionType sets the action type
func (b *ActionBuilder) WithActionType(actionType string) *ActionBuilder {
	b.action.ActionType = actionType
	return b
}

// WithConfig sets the action config
func (b *ActionBuilder) WithConfig(config database.JSONB) *ActionBuilder {
	b.action.ActionConfig = config
	return b
}

// WithTrigger sets the trigger pattern type
func (b *ActionBuilder) WithTrigger(patternType string) *ActionBuilder {
	b.action.TriggerType = database.TriggerTypePattern
	b.action.TriggerPatternType = patternType
	return b
}

// RequiringApproval gates the action behind approval
func (b *ActionBuilder) RequiringApproval() *ActionBuilder {
	b.action.RequiresApproval = true
	return b
}

// Inactive disables the action
func (b *ActionBuilder) Inactive() *ActionBuilder {
	b.action.IsActive = false
	return b
}

// Build returns the constructed action
func (b *ActionBuilder) Build() database.AutomatedAction {
	return b.action
}

// ========================================
// Assertion Helpers
// ========================================

// AssertEqual checks equality with a helpful error message
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertNil checks that value is nil
func AssertNil(t *testing.T, v interface{}, msg string) {
	t.Helper()
	if v != nil {
		t.Errorf("%s: expected nil, got %v", msg, v)
	}
}

// AssertNotNil checks that value is not nil
func AssertNotNil(t *testing.T, v interface{}, msg string) {
	t.Helper()
	if v == nil {
		t.Errorf("%s: expected non-nil value", msg)
	}
}

// AssertError checks that an error occurred
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}

// AssertNoError checks that no error occurred
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertContains checks if string contains substring
func AssertContains(t *testing.T, s, substr string, msg string) {
	t.Helper()
	if !containsString(s, substr) {
		t.Errorf("%s: expected %q to contain %q", msg, s, substr)
	}
}

// ========================================
// Timing Helpers
// ========================================

// MustCompleteWithin fails the test if the function takes longer than the timeout
func MustCompleteWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		t.Fatalf("function did not complete within %v", timeout)
	}
}

// ========================================
// Internal helpers
// ========================================

func containsString(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
