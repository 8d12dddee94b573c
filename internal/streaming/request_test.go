package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	valid := Request{
		SessionID:  "s1",
		SourcePath: "/media/loop.mp4",
		StreamKey:  "key",
		StartTime:  now.Add(time.Minute),
	}

	tests := []struct {
		name  string
		edit  func(*Request)
		field string
	}{
		{"valid", func(*Request) {}, ""},
		{"valid duration", func(r *Request) { r.Stop = StopAfter(time.Hour) }, ""},
		{"valid end time", func(r *Request) { r.Stop = StopAt(now.Add(time.Hour)) }, ""},
		{"start in past is fine", func(r *Request) { r.StartTime = now.Add(-time.Hour) }, ""},
		{"negative duration", func(r *Request) { r.Stop = StopAfter(-time.Second) }, "duration"},
		{"zero end", func(r *Request) { r.Stop = StopPolicy{Kind: StopAtTime} }, "endTime"},
		{"end before start", func(r *Request) { r.Stop = StopAt(now.Add(30 * time.Second)) }, "endTime"},
		{"end equals now", func(r *Request) { r.Stop = StopAt(now) }, "endTime"},
		{"unknown policy", func(r *Request) { r.Stop = StopPolicy{Kind: StopKind(9)} }, "stopPolicy"},
		{"no key", func(r *Request) { r.StreamKey = "" }, "destinationKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.edit(&req)
			err := req.Validate(now)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestStopKind_String(t *testing.T) {
	assert.Equal(t, "none", StopNone.String())
	assert.Equal(t, "duration", StopAfterDuration.String())
	assert.Equal(t, "end_time", StopAtTime.String())
}
