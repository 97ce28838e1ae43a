package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsWrap(t *testing.T) {
	err := fmt.Errorf("index: update: %w: %w", ErrStoreUnavailable, errors.New("disk I/O error"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("wrapped error lost sentinel: %v", err)
	}
	if errors.Is(err, ErrRecordNotFound) {
		t.Fatal("unexpected match")
	}
}
