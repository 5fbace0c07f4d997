package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNotFound(t *testing.T) {
	if !NotFound(Server("fetch", http.StatusNotFound, "")) {
		t.Error("NotFound(404 ServerError) = false, want true")
	}
	if NotFound(Server("fetch", http.StatusInternalServerError, "")) {
		t.Error("NotFound(500 ServerError) = true, want false")
	}
	if NotFound(errors.New("plain")) {
		t.Error("NotFound(plain error) = true, want false")
	}
}

func TestClassifiersUnwrap(t *testing.T) {
	inner := Network("dial", errors.New("refused"))
	wrapped := fmt.Errorf("fetch latest: %w", inner)
	if !IsNetwork(wrapped) {
		t.Error("IsNetwork(wrapped NetworkError) = false, want true")
	}

	authInner := &AuthError{Err: errors.New("refresh rejected")}
	if !IsAuth(fmt.Errorf("call: %w", authInner)) {
		t.Error("IsAuth(wrapped AuthError) = false, want true")
	}
	if IsAuth(inner) {
		t.Error("IsAuth(NetworkError) = true, want false")
	}
}

func TestServerErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 1024)
	for i := range long {
		long[i] = 'x'
	}
	e := Server("fetch", 500, string(long))
	if len(e.Body) >= 1024 {
		t.Errorf("body not truncated: %d bytes", len(e.Body))
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validation("days", "must be positive")
	want := "invalid days: must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
