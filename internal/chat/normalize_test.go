package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freelago/chatkit/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		raw          domain.RawMessage
		wantSender   string
		wantReceiver string
	}{
		{
			name: "user to freelancer",
			raw: domain.RawMessage{
				ID:               "1",
				Content:          "hi",
				CreatedAt:        "2024-01-01T10:00:00Z",
				SenderUserID:     strPtr("U1"),
				ReceiverFreelaID: strPtr("F1"),
			},
			wantSender:   "U1",
			wantReceiver: "F1",
		},
		{
			name: "freelancer to user",
			raw: domain.RawMessage{
				ID:             "2",
				Content:        "hello",
				CreatedAt:      "2024-01-01T10:01:00Z",
				SenderFreelaID: strPtr("F1"),
				ReceiverUserID: strPtr("U1"),
			},
			wantSender:   "F1",
			wantReceiver: "U1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Normalize(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.raw.ID, msg.ID)
			assert.Equal(t, tt.wantSender, msg.SenderID)
			assert.Equal(t, tt.wantReceiver, msg.ReceiverID)
			assert.Equal(t, tt.raw.Content, msg.Content)
			assert.Equal(t, tt.raw.CreatedAt, msg.CreatedAt)
		})
	}
}

func TestNormalizeRejectsBadIdentities(t *testing.T) {
	tests := []struct {
		name    string
		raw     domain.RawMessage
		wantErr error
	}{
		{
			name: "no sender",
			raw: domain.RawMessage{
				ID:             "1",
				ReceiverUserID: strPtr("U1"),
			},
			wantErr: ErrNoSender,
		},
		{
			name: "both senders",
			raw: domain.RawMessage{
				ID:             "1",
				SenderUserID:   strPtr("U1"),
				SenderFreelaID: strPtr("F1"),
				ReceiverUserID: strPtr("U2"),
			},
			wantErr: ErrAmbiguousSender,
		},
		{
			name: "no receiver",
			raw: domain.RawMessage{
				ID:           "1",
				SenderUserID: strPtr("U1"),
			},
			wantErr: ErrNoReceiver,
		},
		{
			name: "both receivers",
			raw: domain.RawMessage{
				ID:               "1",
				SenderUserID:     strPtr("U1"),
				ReceiverUserID:   strPtr("U2"),
				ReceiverFreelaID: strPtr("F1"),
			},
			wantErr: ErrAmbiguousReceiver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
