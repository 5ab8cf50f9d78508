package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodePackageNotFound, "package not found: %s", "Demo.Lib")

	if err.Code != ErrCodePackageNotFound {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodePackageNotFound)
	}
	if !strings.Contains(err.Error(), "Demo.Lib") {
		t.Errorf("Error() should contain the package name: %s", err.Error())
	}
	if !strings.Contains(err.Error(), string(ErrCodePackageNotFound)) {
		t.Errorf("Error() should contain the code: %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeNetwork, cause, "failed to query %s", "https://feed.example")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should include the cause: %s", err.Error())
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"matching code", New(ErrCodeUnsatisfiable, "no assignment"), ErrCodeUnsatisfiable, true},
		{"different code", New(ErrCodeUnsatisfiable, "no assignment"), ErrCodeInstallFailed, false},
		{"wrapped error", fmt.Errorf("outer: %w", New(ErrCodeProtocol, "bad feed")), ErrCodeProtocol, true},
		{"plain error", stderrors.New("plain"), ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if code := GetCode(New(ErrCodeInstallFailed, "disk full")); code != ErrCodeInstallFailed {
		t.Errorf("GetCode = %s, want %s", code, ErrCodeInstallFailed)
	}
	if code := GetCode(stderrors.New("plain")); code != "" {
		t.Errorf("GetCode on plain error = %s, want empty", code)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodePackageNotFound, "package not found: Demo.Lib")
	if msg := UserMessage(err); msg != "package not found: Demo.Lib" {
		t.Errorf("UserMessage = %q", msg)
	}

	plain := stderrors.New("something broke")
	if msg := UserMessage(plain); msg != "something broke" {
		t.Errorf("UserMessage on plain error = %q", msg)
	}
}
