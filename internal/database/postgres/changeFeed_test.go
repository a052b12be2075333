package repository

import (
	"testing"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeChange проверяет разбор полезной нагрузки pg_notify
func TestDecodeChange(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		wantKey string
		wantOp  string
	}{
		{
			name:    "ticket update",
			payload: `{"op":"update","key":"T-01","at":"2026-03-01T10:00:00.123456+00:00"}`,
			wantKey: "T-01",
			wantOp:  "update",
		},
		{
			name:    "missing timestamp",
			payload: `{"op":"delete","key":"5f0c"}`,
			wantKey: "5f0c",
			wantOp:  "delete",
		},
		{
			name:    "not json",
			payload: `update T-01`,
			wantErr: true,
		},
		{
			name:    "no op",
			payload: `{"key":"T-01"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeChange(entity.RecordTicket, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, entity.RecordTicket, ev.Kind)
			assert.Equal(t, tt.wantKey, ev.Key)
			assert.Equal(t, tt.wantOp, ev.Op)
			assert.False(t, ev.At.IsZero())
		})
	}
}

func TestChannelFor(t *testing.T) {
	for _, kind := range entity.WatchedKinds {
		ch, err := ChannelFor(kind)
		require.NoError(t, err)
		assert.Contains(t, ch, "parking_")
	}

	_, err := ChannelFor("booking")
	assert.Error(t, err)
}
