package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := &Error{Permanent: true, Reason: "message rejected", Err: errors.New("boom")}
	want := "permanent send failure: message rejected: boom"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	e = &Error{Reason: "throttled"}
	if e.Error() != "transient send failure: throttled" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestIsPermanent(t *testing.T) {
	perm := &Error{Permanent: true, Reason: "rejected"}
	if !IsPermanent(perm) {
		t.Error("IsPermanent(permanent) = false")
	}
	if IsPermanent(&Error{Reason: "timeout"}) {
		t.Error("IsPermanent(transient) = true")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("IsPermanent(plain error) = true")
	}
	// Wrapped errors should still be recognized.
	wrapped := fmt.Errorf("send: %w", perm)
	if !IsPermanent(wrapped) {
		t.Error("IsPermanent(wrapped permanent) = false")
	}
}
