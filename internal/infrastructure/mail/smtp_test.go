package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendit/parcel-service/internal/core/ports"
)

func TestBuildMessage_SetsHeadersAndBody(t *testing.T) {
	msg, err := buildMessage("noreply@sendit.test", "SendIT", ports.Email{
		To:      "jane@example.com",
		Name:    "Jane",
		Subject: "Parcel delivered",
		Body:    "Your parcel has arrived.",
	})
	require.NoError(t, err)

	var buf strings.Builder
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Parcel delivered")
	assert.Contains(t, raw, "jane@example.com")
	assert.Contains(t, raw, "noreply@sendit.test")
	assert.Contains(t, raw, "Your parcel has arrived.")
}

func TestBuildMessage_RejectsBadRecipient(t *testing.T) {
	_, err := buildMessage("noreply@sendit.test", "", ports.Email{To: "not an address"})
	assert.Error(t, err)
}
