package types

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeNoRoute, "nowhere to send")
	if err.Error() != "NO_ROUTE: nowhere to send" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	cause := errors.New("socket gone")
	wrapped := WrapError(ErrCodeUnavailable, "send failed", cause)
	if wrapped.Error() != "UNAVAILABLE: send failed: socket gone" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error must expose its cause")
	}
}

func TestErrCodeHelpers(t *testing.T) {
	err := NewError(ErrCodeNoProtocols, "nothing started")
	if !IsErrCode(err, ErrCodeNoProtocols) {
		t.Error("IsErrCode must match the code")
	}
	if IsErrCode(err, ErrCodeNoRoute) {
		t.Error("IsErrCode must not match other codes")
	}
	if IsErrCode(errors.New("plain"), ErrCodeNoRoute) {
		t.Error("plain errors carry no code")
	}
	if GetErrorCode(err) != ErrCodeNoProtocols {
		t.Errorf("unexpected code: %s", GetErrorCode(err))
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("plain errors must yield an empty code")
	}
}
