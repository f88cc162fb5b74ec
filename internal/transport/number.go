package transport

import (
	"strings"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

// DefaultUserServer is the JID server for individual accounts
const DefaultUserServer = "s.whatsapp.net"

// NormalizeNumber turns "+55 (11) 99999-9999" or "5511999999999@s.whatsapp.net"
// into bare digits. Full JIDs with other servers (groups) are returned as-is.
func NormalizeNumber(to string) (string, error) {
	to = strings.TrimSpace(to)
	if at := strings.IndexByte(to, '@'); at >= 0 {
		if to[at+1:] != DefaultUserServer {
			if at == 0 || at == len(to)-1 {
				return "", domain.InvalidArgument("invalid recipient " + to)
			}
			return to, nil
		}
		to = to[:at]
	}

	var b strings.Builder
	for _, r := range to {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", domain.InvalidArgument("invalid recipient " + to)
		}
	}
	digits := b.String()
	if len(digits) < 5 || len(digits) > 20 {
		return "", domain.InvalidArgument("invalid recipient " + to)
	}
	return digits, nil
}
