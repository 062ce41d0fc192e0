package protocol

import (
	"errors"
	"testing"
)

func TestWrapOpErrorDoesNotDoubleWrap(t *testing.T) {
	base := errors.New("boom")
	first := WrapOpError("read", "/a.txt", base)
	second := WrapOpError("read", "/a.txt", first)
	if second != first {
		t.Fatalf("expected WrapOpError to be a no-op on an already-wrapped error for the same path")
	}
}

func TestWrapOpErrorNilIsNil(t *testing.T) {
	if WrapOpError("read", "/a.txt", nil) != nil {
		t.Fatal("expected WrapOpError(nil) to return nil")
	}
}

func TestCodeOfUnwrapsErrorCode(t *testing.T) {
	wrapped := WrapOpError("read", "/a.txt", NotFound)
	if CodeOf(wrapped) != NotFound {
		t.Fatalf("CodeOf(wrapped NotFound) = %v, want NotFound", CodeOf(wrapped))
	}
}

func TestCodeOfDefaultsToInternalError(t *testing.T) {
	if CodeOf(errors.New("mystery")) != InternalError {
		t.Fatal("expected an unrecognized error to map to InternalError")
	}
}

func TestIsRetryableClassifiesNetworkFailure(t *testing.T) {
	err := WrapOpError("read", "/a.txt", NetworkFailure)
	if !IsRetryable(err) {
		t.Fatal("expected NetworkFailure to be retryable")
	}
}

func TestIsRetryableRejectsInvalidArgument(t *testing.T) {
	err := WrapOpError("read", "/a.txt", InvalidArgument)
	if IsRetryable(err) {
		t.Fatal("expected InvalidArgument to not be retryable")
	}
}
