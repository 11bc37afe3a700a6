package sensor

import (
	"strings"

	"github.com/okian/pointbin/internal/domain/model"
)

// Line prefixes of the sensor board protocol.
const (
	prefixUltraEvent = "ULTRA EVENT"
	prefixIdentity   = "RFID UID="
	lineHeartbeat    = "PING"
)

// Parse classifies one protocol line. Blank lines yield ok == false.
//
//	ULTRA EVENT state=PRESENT dist_cm=23   -> StateEvent
//	RFID UID=04A1B2C3                      -> IdentityRead
//	PING                                   -> Heartbeat
//	anything else                          -> Unrecognized
func Parse(line string) (model.SensorRecord, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil, false
	case strings.HasPrefix(line, prefixUltraEvent):
		var ev model.StateEvent
		for _, field := range strings.Fields(line[len(prefixUltraEvent):]) {
			key, val, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch key {
			case "state":
				ev.State = val
			case "dist_cm":
				ev.Distance = val
			}
		}
		return ev, true
	case strings.HasPrefix(line, prefixIdentity):
		return model.IdentityRead{Identity: strings.TrimSpace(line[len(prefixIdentity):])}, true
	case line == lineHeartbeat:
		return model.Heartbeat{}, true
	default:
		return model.Unrecognized{Raw: line}, true
	}
}
