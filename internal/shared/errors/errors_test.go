package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType(t *testing.T) {
	types := []ErrorType{
		ErrorTypeNetwork,
		ErrorTypeHTTP,
		ErrorTypeValidation,
		ErrorTypePartial,
		ErrorTypeDecode,
		ErrorTypeAuth,
	}

	expectedStrings := []string{
		"network",
		"http",
		"validation",
		"partial",
		"decode",
		"auth",
	}

	for i, errType := range types {
		assert.Equal(t, ErrorType(expectedStrings[i]), errType)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		contains []string
	}{
		{
			name: "basic error",
			err: &APIError{
				Type:      ErrorTypeValidation,
				Message:   "validation failed",
				Timestamp: time.Now(),
			},
			contains: []string{"validation failed"},
		},
		{
			name: "error with resource",
			err: &APIError{
				Type:      ErrorTypeHTTP,
				Message:   "Failed to create project",
				Resource:  "sub-1",
				Timestamp: time.Now(),
			},
			contains: []string{"Failed to create project", "(resource: sub-1)"},
		},
		{
			name: "error with cause",
			err: &APIError{
				Type:      ErrorTypeNetwork,
				Message:   "login: network error",
				Wrapped:   fmt.Errorf("connection refused"),
				Timestamp: time.Now(),
			},
			contains: []string{"login: network error", "caused by: connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, c := range tt.contains {
				assert.Contains(t, msg, c)
			}
			assert.NotZero(t, tt.err.Timestamp)
		})
	}
}

func TestNewHTTPError(t *testing.T) {
	t.Run("server message wins", func(t *testing.T) {
		err := NewHTTPError("login", http.StatusUnauthorized, "Invalid email or password", "Login failed")
		assert.Equal(t, "Invalid email or password", err.Message)
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
		assert.Equal(t, "login", err.Operation)
	})

	t.Run("falls back to generic message", func(t *testing.T) {
		err := NewHTTPError("login", http.StatusInternalServerError, "", "Login failed")
		assert.Equal(t, "Login failed", err.Message)
	})
}

func TestBuilder(t *testing.T) {
	err := NewError(ErrorTypeHTTP, "Failed to update project").
		WithOperation("update_project").
		WithStatus(http.StatusConflict).
		WithResource("p-1").
		WithProvider("azure").
		WithRequestID("req-1").
		WithDetails("field", "name").
		Build()

	assert.Equal(t, "update_project", err.Operation)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "p-1", err.Resource)
	assert.Equal(t, "azure", err.Provider)
	assert.Equal(t, "req-1", err.RequestID)
	assert.Equal(t, "name", err.Details["field"])
	assert.Contains(t, err.ToJSON(), `"operation": "update_project"`)
}

func TestIsAndAs(t *testing.T) {
	base := NewHTTPError("me", http.StatusUnauthorized, "token expired", "Failed to fetch user")
	wrapped := fmt.Errorf("loading profile: %w", base)

	assert.True(t, stderrors.Is(wrapped, &APIError{Type: ErrorTypeHTTP}))
	assert.True(t, stderrors.Is(wrapped, &APIError{Type: ErrorTypeHTTP, StatusCode: http.StatusUnauthorized}))
	assert.False(t, stderrors.Is(wrapped, &APIError{Type: ErrorTypeHTTP, StatusCode: http.StatusNotFound}))
	assert.False(t, stderrors.Is(wrapped, &APIError{Type: ErrorTypeNetwork}))

	assert.True(t, IsType(wrapped, ErrorTypeHTTP))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(wrapped))
	assert.Equal(t, "token expired", UserMessage(wrapped))
	assert.Equal(t, "plain", UserMessage(fmt.Errorf("plain")))
	assert.Empty(t, UserMessage(nil))
}

func TestNetworkErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := NewNetworkError("list_projects", cause)

	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.ErrorIs(t, err, cause)
}

func TestPartialError(t *testing.T) {
	assert.NoError(t, PartialError("sync", nil))

	cause := fmt.Errorf("boom")
	err := PartialError("sync", []ItemFailure{
		{Item: "s1", Operation: "create_project", Err: cause},
		{Item: "s2", Operation: "update_project", Err: fmt.Errorf("other")},
	})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypePartial))
	assert.Contains(t, err.Error(), "2 item(s) failed")
	assert.ErrorIs(t, err, cause)
}

func BenchmarkAPIError_Error(b *testing.B) {
	err := &APIError{
		Type:      ErrorTypeHTTP,
		Message:   "Failed to create resource group",
		Resource:  "rg-web",
		Operation: "create_resource_group",
		Details: map[string]interface{}{
			"subscription_id": "s1",
		},
		Timestamp: time.Now(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = err.Error()
	}
}
