package emailtest

import (
	"context"
	"errors"
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

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	data := accessData{InvoiceID: 7, Email: "a@b.com", MagicLinkURL: "https://x"}
	require.NoError(t, r.SendTemplate(context.Background(), []string{"a@b.com"}, "course_access", "Access", data))
	require.Len(t, r.Messages(), 1)
	assert.Equal(t, "Access", r.Messages()[0].Subject)
	assert.Contains(t, r.Messages()[0].Body, "https://x")

	r.Err = errors.New("smtp down")
	assert.Error(t, r.Send(context.Background(), []string{"a@b.com"}, "s", "b"))
	assert.Len(t, r.Messages(), 1)
}
