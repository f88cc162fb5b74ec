package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateNext(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		ok      bool
	}{
		{"request qr from created", StateCreated, TriggerRequestQR, StateQRReady, true},
		{"request qr after logout", StateDisconnected, TriggerRequestQR, StateQRReady, true},
		{"request qr while connected", StateConnected, TriggerRequestQR, "", false},
		{"expiry", StateQRReady, TriggerQRExpired, StateCreated, true},
		{"expiry outside qr_ready", StateConnecting, TriggerQRExpired, "", false},
		{"scan", StateQRReady, TriggerScanned, StateConnecting, true},
		{"scan without qr", StateCreated, TriggerScanned, "", false},
		{"open", StateConnecting, TriggerOpened, StateConnected, true},
		{"open from qr_ready", StateQRReady, TriggerOpened, "", false},
		{"failed", StateConnecting, TriggerFailed, StateDisconnected, true},
		{"reconnect eligible close", StateConnected, TriggerReconnect, StateConnecting, true},
		{"logged out", StateConnected, TriggerLoggedOut, StateDisconnected, true},
		{"retry after disconnect", StateDisconnected, TriggerConnectAttempt, StateConnecting, true},
		{"setup failure from connected", StateConnected, TriggerSetupFailed, StateError, true},
		{"setup failure from created", StateCreated, TriggerSetupFailed, StateError, true},
		{"error is absorbing", StateError, TriggerSetupFailed, StateError, false},
		{"no way out of error", StateError, TriggerRequestQR, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.from.Next(tt.trigger)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestStateValid(t *testing.T) {
	for _, s := range States {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, State("paired").Valid())
}

func TestInstanceQRExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inst := Instance{Name: "a", State: StateQRReady, QRToken: "tok", QRIssuedAt: issued}

	assert.False(t, inst.QRExpired(issued.Add(59*time.Second), time.Minute))
	assert.True(t, inst.QRExpired(issued.Add(time.Minute), time.Minute))
	assert.False(t, Instance{}.QRExpired(issued.Add(time.Hour), time.Minute))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "sales-bot", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"padded", " sales ", true},
		{"slash", "a/b", true},
		{"too long", string(make([]byte, MaxInstanceNameLength+1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.True(t, IsInvalidArgument(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
