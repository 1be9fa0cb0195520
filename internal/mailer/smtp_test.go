package mailer

import (
	"testing"

	"media-reconciler/internal/common/config"
	"media-reconciler/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func TestSend_EmptyRecipientListIsNoOp(t *testing.T) {
	m := New(config.EmailConfig{SMTPHost: "unreachable.invalid", SMTPPort: 587}, logger.NewNoOpLogger())

	// No transaction is attempted, so the bogus host never matters.
	assert.NoError(t, m.Send(nil, "subject", "body"))
	assert.NoError(t, m.Send([]string{"", "   "}, "subject", "body"))
}

func TestBuildMessage(t *testing.T) {
	m := New(config.EmailConfig{From: "noreply@x.com"}, logger.NewNoOpLogger())

	msg := string(m.buildMessage([]string{"a@x.com", "b@x.com"}, "Reminder", "3 days left"))
	assert.Contains(t, msg, "From: noreply@x.com\r\n")
	assert.Contains(t, msg, "To: a@x.com, b@x.com\r\n")
	assert.Contains(t, msg, "Subject: Reminder\r\n")
	assert.Contains(t, msg, "\r\n\r\n3 days left")
}
