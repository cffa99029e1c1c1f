package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitErrorUnwrapsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("ask: %w", Failed("reply failed"))

	var exitErr ExitError
	if !errors.As(err, &exitErr) {
		t.Fatal("expected ExitError in chain")
	}
	if exitErr.Code != ReplyFailed || exitErr.Error() != "reply failed" {
		t.Fatalf("unexpected exit error: %+v", exitErr)
	}
	if Cancel().Code != Cancelled {
		t.Fatalf("Cancel().Code=%d", Cancel().Code)
	}
}
