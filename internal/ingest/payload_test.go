package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

func TestValidator_Decode(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	p, err := v.Decode(models.WebhookTypeRecordings, []byte(`{
		"id":"wh1","resource":"recordings","event":"created",
		"data":{"id":"r1","meetingId":"m1","siteUrl":"https://s1.webex.com","hostEmail":"a@s1.com","createTime":"2024-01-27T17:00:00Z"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", p.Data.ID)
	assert.Equal(t, "a@s1.com", p.Data.HostEmail)
	assert.Equal(t, time.Date(2024, 1, 27, 17, 0, 0, 0, time.UTC), p.Data.CreatedAt())

	_, err = v.Decode(models.WebhookTypeTranscripts, []byte(`{"resource":"meetingTranscripts","event":"created","data":{"id":"t1","siteUrl":"s1"}}`))
	assert.Error(t, err, "transcript events need a meeting id")

	_, err = v.Decode(models.WebhookTypeRecordings, []byte(`{"resource":"recordings","event":"created","data":{"id":"","siteUrl":"s1"}}`))
	assert.Error(t, err)

	_, err = v.Decode(models.WebhookTypeRecordings, []byte(`[]`))
	assert.Error(t, err)
}

func TestWebhookData_CreatedAtMalformed(t *testing.T) {
	assert.True(t, WebhookData{CreateTime: "yesterday"}.CreatedAt().IsZero())
	assert.True(t, WebhookData{}.CreatedAt().IsZero())
}

func TestSignature(t *testing.T) {
	body := []byte(`{"resource":"recordings"}`)
	sig := Sign("s3cret", body)
	assert.Len(t, sig, 40)
	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.True(t, VerifySignature("s3cret", body, " "+sig+"\n"))
	assert.False(t, VerifySignature("s3cret", append(body, ' '), sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", body, "zz"))
	assert.False(t, VerifySignature("s3cret", body, ""))
}
