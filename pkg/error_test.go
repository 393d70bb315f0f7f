package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestAckStatus_String(t *testing.T) {
	tests := []struct {
		status AckStatus
		want   string
	}{
		{AckStatusGood, "good"},
		{AckStatusCheckCondition, "check condition"},
		{AckStatus(0x7f), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("AckStatus.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrTimeout, ErrCancelled, ErrProtocol, ErrNoCard, ErrNotMounted,
		ErrNoImage, ErrInvalidDrive, ErrInvalidParameter, ErrBufferTooSmall,
		ErrNotSupported, ErrAlreadyRunning, ErrNotRunning, ErrNotConfigured,
	}

	seen := make(map[string]bool)
	for i, err := range errs {
		if seen[err.Error()] {
			t.Errorf("duplicate message %q", err)
		}
		seen[err.Error()] = true

		wrapped := fmt.Errorf("drive %d: %w", i, err)
		for j, other := range errs {
			if got := errors.Is(wrapped, other); got != (i == j) {
				t.Errorf("errors.Is(wrap(%v), %v) = %v", err, other, got)
			}
		}
	}
}
