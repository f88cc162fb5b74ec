package domain

// State is the lifecycle state of an instance
type State string

const (
	StateCreated      State = "created"
	StateQRReady      State = "qr_ready"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// States lists every lifecycle state in display order
var States = []State{
	StateCreated,
	StateQRReady,
	StateConnecting,
	StateConnected,
	StateDisconnected,
	StateError,
}

// Trigger names an input to the state machine
type Trigger string

const (
	TriggerRequestQR      Trigger = "request_qr"
	TriggerQRRotated      Trigger = "qr_rotated"
	TriggerQRExpired      Trigger = "qr_expired"
	TriggerScanned        Trigger = "scan_detected"
	TriggerConnectAttempt Trigger = "connect_attempt"
	TriggerOpened         Trigger = "connection_established"
	TriggerFailed         Trigger = "connection_failed"
	TriggerReconnect      Trigger = "disconnect_reconnect"
	TriggerLoggedOut      Trigger = "disconnect_logged_out"
	TriggerSetupFailed    Trigger = "setup_failed"
)

type edge struct {
	from    State
	trigger Trigger
}

// transitions is the full table; anything absent is rejected.
// TriggerSetupFailed is accepted from every state except error.
var transitions = map[edge]State{
	{StateCreated, TriggerRequestQR}:      StateQRReady,
	{StateDisconnected, TriggerRequestQR}: StateQRReady,
	{StateCreated, TriggerQRRotated}:      StateQRReady,
	{StateQRReady, TriggerQRRotated}:      StateQRReady,
	{StateQRReady, TriggerQRExpired}:      StateCreated,
	{StateQRReady, TriggerScanned}:        StateConnecting,

	{StateCreated, TriggerConnectAttempt}:      StateConnecting,
	{StateDisconnected, TriggerConnectAttempt}: StateConnecting,

	{StateConnecting, TriggerOpened}: StateConnected,
	{StateConnecting, TriggerFailed}: StateDisconnected,

	{StateConnected, TriggerReconnect}: StateConnecting,
	{StateConnected, TriggerLoggedOut}: StateDisconnected,
}

// Next returns the state reached from s on t
func (s State) Next(t Trigger) (State, bool) {
	if t == TriggerSetupFailed {
		return StateError, s != StateError
	}
	to, ok := transitions[edge{s, t}]
	return to, ok
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	for _, v := range States {
		if v == s {
			return true
		}
	}
	return false
}

func (s State) String() string { return string(s) }
