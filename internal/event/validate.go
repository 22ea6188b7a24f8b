package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field size limits, in bytes of the UTF-8 encoding.
const (
	maxSessionIDLen = 256
	maxPathLen      = 4096
	maxToolLen      = 256
	maxCommandLen   = 8192
	maxReasonLen    = 512
	maxHookNameLen  = 256
	maxPayloadKeys  = 100
	maxMetadataLen  = 10000

	// Producers may run slightly ahead of the server clock.
	maxClockSkew = 60 * time.Second
)

// FieldError describes a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldErrorf(field, format string, args ...any) FieldError {
	return FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks an event against the schema: structural presence, enum
// membership, length bounds, the timestamp window, and serialized metadata
// size. It mutates nothing and returns nil for a valid event. Unknown
// top-level fields (Extra) are not validated; they are preserved but never
// trusted.
func Validate(e Event, now time.Time) []FieldError {
	var errs []FieldError

	if e.V != 1 {
		errs = append(errs, fieldErrorf("v", "schema version must be 1, got %d", e.V))
	}

	if e.TS < 0 {
		errs = append(errs, fieldErrorf("ts", "must be non-negative"))
	} else if ceiling := float64(now.Add(maxClockSkew).UnixNano()) / 1e9; e.TS > ceiling {
		errs = append(errs, fieldErrorf("ts", "too far in the future"))
	}

	if e.SessionID == "" {
		errs = append(errs, fieldErrorf("session_id", "required"))
	} else if len(e.SessionID) > maxSessionIDLen {
		errs = append(errs, fieldErrorf("session_id", "exceeds %d bytes", maxSessionIDLen))
	}

	if e.ID != "" {
		if _, ok := OffsetOf(e.ID); !ok {
			errs = append(errs, fieldErrorf("id", "malformed canonical id %q", e.ID))
		}
	}

	switch e.Type {
	case TypeFileTouch:
		if e.Path == "" {
			errs = append(errs, fieldErrorf("path", "required"))
		} else if len(e.Path) > maxPathLen {
			errs = append(errs, fieldErrorf("path", "exceeds %d bytes", maxPathLen))
		}
		if e.Kind != KindRead && e.Kind != KindWrite {
			errs = append(errs, fieldErrorf("kind", "must be read or write, got %q", e.Kind))
		}
	case TypeToolCall:
		if e.Tool == "" {
			errs = append(errs, fieldErrorf("tool", "required"))
		} else if len(e.Tool) > maxToolLen {
			errs = append(errs, fieldErrorf("tool", "exceeds %d bytes", maxToolLen))
		}
		if e.Phase != PhaseStart && e.Phase != PhaseEnd {
			errs = append(errs, fieldErrorf("phase", "must be start or end, got %q", e.Phase))
		}
		if len(e.Command) > maxCommandLen {
			errs = append(errs, fieldErrorf("command", "exceeds %d bytes", maxCommandLen))
		}
	case TypeSession:
		switch e.State {
		case SessionStart, SessionStop, SessionInterrupt, SessionCrash:
		default:
			errs = append(errs, fieldErrorf("state", "invalid session state %q", e.State))
		}
	case TypeAgentState:
		if e.State != AgentThinking && e.State != AgentResponding {
			errs = append(errs, fieldErrorf("state", "invalid agent state %q", e.State))
		}
	case TypeUnknown:
		if len(e.PayloadKeys) > maxPayloadKeys {
			errs = append(errs, fieldErrorf("payload_keys", "exceeds %d entries", maxPayloadKeys))
		}
		if len(e.Reason) > maxReasonLen {
			errs = append(errs, fieldErrorf("reason", "exceeds %d bytes", maxReasonLen))
		}
		if len(e.HookEventName) > maxHookNameLen {
			errs = append(errs, fieldErrorf("hook_event_name", "exceeds %d bytes", maxHookNameLen))
		}
	default:
		errs = append(errs, fieldErrorf("type", "unrecognized event type %q", e.Type))
	}

	if e.Metadata != nil {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			errs = append(errs, fieldErrorf("metadata", "not JSON-serializable"))
		} else if len(data) > maxMetadataLen {
			errs = append(errs, fieldErrorf("metadata", "serialized form exceeds %d bytes", maxMetadataLen))
		}
	}

	return errs
}
