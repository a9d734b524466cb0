package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accessData struct {
	InvoiceID         int64
	Email             string
	MagicLinkURL      string
	ExpiresAt         string
	TemporaryPassword string
}

func TestRenderCourseAccess(t *testing.T) {
	body, err := Render("course_access", accessData{
		InvoiceID:         12,
		Email:             "a@b.com",
		MagicLinkURL:      "https://shop.test/auth/magic?token=abc",
		ExpiresAt:         "2026-01-02 10:00 UTC",
		TemporaryPassword: "Secret<pw>",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "https://shop.test/auth/magic?token=abc")
	assert.Contains(t, body, "Order #12")
	assert.Contains(t, body, "Secret&lt;pw&gt;")
}

func TestRenderOmitsPasswordWhenEmpty(t *testing.T) {
	body, err := Render("course_access", accessData{MagicLinkURL: "https://x"})
	require.NoError(t, err)
	assert.NotContains(t, body, "temporary password")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("shop@x.test", []string{"a@b.com"}, "Доступ к курсу", "<p>hi</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: shop@x.test\r\nTo: a@b.com\r\n"))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>"))
}
