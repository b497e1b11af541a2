package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"remote fetch", ErrRemoteFetch, true},
		{"fetch timeout", ErrFetchTimeout, true},
		{"offline no data", ErrOfflineNoData, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"unknown collection", ErrUnknownCollection, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"operation abandoned", ErrOperationAbandoned, true},
		{"remote fetch", ErrRemoteFetch, false},
		{"invalid data", ErrInvalidData, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"unknown collection", ErrUnknownCollection, true},
		{"invalid data", ErrInvalidData, true},
		{"unknown operation type", ErrUnknownOperationType, true},
		{"remote fetch", ErrRemoteFetch, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(ErrUnknownCollection) != ErrorInvalid {
		t.Error("expected unknown collection to classify as invalid")
	}
	if Classify(ErrOperationAbandoned) != ErrorFatal {
		t.Error("expected abandoned operation to classify as fatal")
	}
	if Classify(ErrRemoteFetch) != ErrorTransient {
		t.Error("expected remote fetch to classify as transient")
	}
	if Classify(fmt.Errorf("some unknown error")) != ErrorTransient {
		t.Error("expected unknown error to default to transient")
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("underlying problem")

	wrapped := Wrap(base, "Coordinator", "Read", "remote fetch")
	if wrapped == nil {
		t.Fatal("expected non-nil wrapped error")
	}
	if !strings.Contains(wrapped.Error(), "Coordinator.Read: remote fetch failed") {
		t.Errorf("unexpected wrap format: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected wrapped error to unwrap to base")
	}

	if Wrap(nil, "c", "m", "a") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestWrapClassified(t *testing.T) {
	base := ErrRemoteMutation

	transient := WrapTransient(base, "Queue", "Drain", "replay")
	if !IsTransient(transient) {
		t.Error("expected transient classification")
	}
	if !errors.Is(transient, ErrRemoteMutation) {
		t.Error("expected sentinel to survive wrapping")
	}

	invalid := WrapInvalid(ErrUnknownCollection, "Policy", "TTLFor", "lookup")
	if !IsInvalid(invalid) {
		t.Error("expected invalid classification")
	}

	fatal := WrapFatal(ErrOperationAbandoned, "Queue", "Drain", "retry budget")
	if !IsFatal(fatal) {
		t.Error("expected fatal classification")
	}

	var ce *ClassifiedError
	if !errors.As(transient, &ce) {
		t.Fatal("expected ClassifiedError in chain")
	}
	if ce.Component != "Queue" || ce.Operation != "Drain" {
		t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
	}
}
