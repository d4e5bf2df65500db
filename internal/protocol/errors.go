package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Move requests.
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrInvalidTarget:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Reject builds a refusing ACK. Codes outside the protocol are reported as
// E_INTERNAL.
func Reject(tick uint64, ackFor, code, message string) AckMsg {
	if !IsKnownCode(code) || code == "" {
		code = ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          ackFor,
		Code:            code,
		Message:         message,
		ServerTick:      tick,
	}
}
