package qr

import (
	"io"

	"github.com/mdp/qrterminal/v3"
)

// PrintTerminal writes token as a half-block QR code for operators
// following the logs of a headless gateway.
func PrintTerminal(w io.Writer, token string) {
	qrterminal.GenerateHalfBlock(token, qrterminal.L, w)
}
