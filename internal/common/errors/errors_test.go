package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	fatal := NewFatalConfigError("no server blocks configured")
	assert.True(t, IsFatal(fatal))

	// Wrapping preserves the classification.
	assert.True(t, IsFatal(fmt.Errorf("startup: %w", fatal)))

	assert.False(t, IsFatal(NewCollectorFailedError("ledger", fmt.Errorf("down"))))
	assert.False(t, IsFatal(NewNonActionableRecordError("no email")))
	assert.False(t, IsFatal(NewMutationFailedError("revoke_access", "plex1", "a@x.com", fmt.Errorf("boom"))))
	assert.False(t, IsFatal(fmt.Errorf("plain error")))
	assert.False(t, IsFatal(nil))
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, NewCollectorFailedError("media", fmt.Errorf("timeout")).Retryable)
	assert.True(t, NewDeliveryFailedError("dm", fmt.Errorf("503")).Retryable)
	assert.True(t, NewMutationFailedError("remove_role", "plex1", "1001", fmt.Errorf("503")).Retryable)
	assert.False(t, NewNonActionableRecordError("no email").Retryable)
	assert.False(t, NewFatalConfigError("bad config").Retryable)
}
