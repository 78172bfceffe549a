package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWithCode_Nil(t *testing.T) {
	if err := WithCode(CodeInvalidSubnet, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCodeOf_Wrapped(t *testing.T) {
	base := Errorf(CodeNoDefaultRoute, "no IPv4 default route")
	wrapped := fmt.Errorf("resolve lan interface: %w", base)

	if got := CodeOf(wrapped); got != CodeNoDefaultRoute {
		t.Errorf("CodeOf = %s, want %s", got, CodeNoDefaultRoute)
	}
	if !HasCode(wrapped, CodeNoDefaultRoute) {
		t.Error("HasCode should see code through wrapping")
	}
}

func TestCodeOf_Uncoded(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf = %s, want %s", got, CodeInternal)
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := WithCode(CodeRuleApplyFailed, sentinel)
	if !stderrors.Is(err, sentinel) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if err.Error() != "RULE_APPLY_FAILED: sentinel" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
