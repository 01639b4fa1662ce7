package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Style.Analyze", ErrInvalidInput, "answer 'vibe' is empty")
	want := "Style.Analyze: answer 'vibe' is empty: invalid input"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Stream.Run", ErrMissingCredential, "")
	want := "Stream.Run: no api key available"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Stream.Run", ErrTransport, "status 500")
	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is should match ErrTransport")
	}
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))

	err := WrapOp("History.Add", ErrStore)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, "History.Add: store operation failed", err.Error())
}

func TestIsSessionFailure(t *testing.T) {
	assert.True(t, IsSessionFailure(fmt.Errorf("x: %w", ErrTransport)))
	assert.True(t, IsSessionFailure(ErrNoStructuredResult))
	assert.True(t, IsSessionFailure(ErrMissingCredential))
	assert.False(t, IsSessionFailure(ErrInvalidInput))
	assert.False(t, IsSessionFailure(nil))
}

// --- ErrorCode tests ---

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"unknown", fmt.Errorf("some random error"), CodeUnknown},
		{"transport", ErrTransport, CodeTransport},
		{"wrapped", fmt.Errorf("context: %w", ErrNoStructuredResult), CodeNoStructuredResult},
		{"domain error", NewDomainError("Key.Get", ErrMissingCredential, ""), CodeMissingCredential},
		{"not found", ErrNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestErrorCodeOf_MostSpecificWins(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrNoStructuredResult, ErrInvalidInput)
	assert.Equal(t, CodeNoStructuredResult, ErrorCodeOf(err))
}
