package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfAndHTTPStatus(t *testing.T) {
	sentinel := errors.New("recipient not found")
	wrapped := fmt.Errorf("bus: %w", New(KindNotFound, sentinel))

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("KindOf() = %v, want KindNotFound", got)
	}
	if got := HTTPStatus(KindOf(wrapped)); got != 404 {
		t.Fatalf("HTTPStatus() = %d, want 404", got)
	}

	if got := KindOf(errors.New("plain error")); got != KindUnknown {
		t.Fatalf("KindOf() on plain error = %v, want KindUnknown", got)
	}
}
