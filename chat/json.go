package chat

import (
	"encoding/json"
	"math"
	"time"
)

// The backend is loose about event timestamps: most are ISO 8601 strings but
// some workers emit epoch seconds. Both forms must revive to a time.Time.
func (e *ThinkingEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Timestamp json.RawMessage `json:"timestamp"`
		Type      string          `json:"type"`
		Message   string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = raw.ID
	e.Type = raw.Type
	e.Message = raw.Message
	e.Timestamp = parseWireTime(raw.Timestamp)
	return nil
}

func parseWireTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return time.Time{}
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		sec, frac := math.Modf(secs)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	}

	return time.Time{}
}
