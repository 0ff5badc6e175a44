package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.Spawn", ErrAgentExists, "researcher")
	if !errors.Is(err, ErrAgentExists) {
		t.Errorf("errors.Is(err, ErrAgentExists) = false, want true")
	}
	want := "Registry.Spawn: researcher: agent already exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(op, nil) should be nil")
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{ErrAgentNotFound, CodeAgentNotFound},
		{NewDomainError("op", ErrInvalidExecution, ""), CodeInvalidExecution},
		{fmt.Errorf("outer: %w", ErrRemoteUnavailable), CodeRemoteUnavailable},
		{errors.New("unrelated"), CodeUnknown},
	}
	for _, tt := range tests {
		if got := ErrorCodeOf(tt.err); got != tt.want {
			t.Errorf("ErrorCodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
