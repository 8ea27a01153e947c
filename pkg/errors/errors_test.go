package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewAndIs(t *testing.T) {
	err := New(ErrCodePageNotFound, "page %q not found", "p1")
	if !Is(err, ErrCodePageNotFound) {
		t.Error("Is failed on direct error")
	}
	if Is(err, ErrCodeStoryNotFound) {
		t.Error("Is matched wrong code")
	}
	if got := err.Error(); got != `PAGE_NOT_FOUND: page "p1" not found` {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapPreservesChain(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(ErrCodePersistence, cause, "save page %s", "p1")

	if !Is(err, ErrCodePersistence) {
		t.Error("Is failed on wrapped error")
	}
	if !stderrors.Is(err, cause) {
		t.Error("stdlib errors.Is lost the cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}

	// Codes survive additional fmt wrapping.
	outer := fmt.Errorf("handler: %w", err)
	if GetCode(outer) != ErrCodePersistence {
		t.Errorf("GetCode through fmt wrap = %q", GetCode(outer))
	}
}

func TestGetCodePlainError(t *testing.T) {
	if got := GetCode(stderrors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
	if Is(stderrors.New("plain"), ErrCodeInternal) {
		t.Error("Is matched a plain error")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeContentIncomplete, "this choice has not been written yet")
	if got := UserMessage(err); got != "this choice has not been written yet" {
		t.Errorf("UserMessage = %q, want message without code prefix", got)
	}
	if got := UserMessage(stderrors.New("plain")); got != "plain" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	for _, code := range []Code{ErrCodeNotFound, ErrCodeStoryNotFound, ErrCodePageNotFound, ErrCodeChoiceNotFound, ErrCodePartyNotFound} {
		if !IsNotFound(New(code, "x")) {
			t.Errorf("IsNotFound(%s) = false", code)
		}
	}
	if IsNotFound(New(ErrCodePersistence, "x")) {
		t.Error("IsNotFound matched PERSISTENCE")
	}
}
