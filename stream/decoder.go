// Package stream implements the client side of the chat completion protocol:
// a line decoder for the service's framed text stream, a pure reducer that
// folds decoded units into the in-flight assistant message, and a session
// controller that owns one streaming call end to end.
package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/polichat/polichat/chat"
	"github.com/polichat/polichat/internal/logging"
)

// Protocol framing. Lines end with an explicit end-of-message token, not a
// bare newline: a single unit may contain embedded newlines.
const (
	lineDelimiter = "[END_MESSAGE]\n"
	doneSentinel  = "[DONE]"

	prefixText  = "0: "
	prefixTool  = "b: "
	prefixEvent = "e: "

	// Optional outer SSE framing, stripped before classification.
	ssePrefix = "data: "
)

// LineDecoder accumulates chunked stream text and yields complete protocol
// lines. The unconsumed tail stays buffered until the closing delimiter
// arrives, so chunk boundaries may fall anywhere, including mid-delimiter.
type LineDecoder struct {
	buffer string
}

// Feed appends a chunk and returns all complete lines now available.
func (d *LineDecoder) Feed(chunk string) []string {
	d.buffer += chunk
	parts := strings.Split(d.buffer, lineDelimiter)
	d.buffer = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// Rest returns whatever is still buffered without a closing delimiter.
func (d *LineDecoder) Rest() string {
	return d.buffer
}

// UnitType classifies one decoded protocol unit.
type UnitType int

const (
	UnitText UnitType = iota
	UnitTool
	UnitEvent
	UnitDone
)

// Unit is one decoded protocol line.
type Unit struct {
	Type  UnitType
	Text  string             // UnitText: fragment to append to content
	Tools []ToolUnit         // UnitTool: one or more invocation updates
	Event chat.ThinkingEvent // UnitEvent: timeline entry
}

// ToolUnit is the wire form of a tool invocation update. Absent fields stay
// zero so the reducer can merge without clobbering earlier state.
type ToolUnit struct {
	ToolCallID string                 `json:"toolCallId"`
	ToolName   string                 `json:"toolName"`
	ToolArgs   map[string]interface{} `json:"toolArgs"`
	State      string                 `json:"state"`
	Result     interface{}            `json:"result"`
	CreatedAt  *time.Time             `json:"createdAt"`
}

// DecodeLine classifies and parses one complete protocol line. It returns
// ok=false for blank lines, unknown prefixes and malformed payloads: a bad
// unit is skipped, never fatal to the stream.
func DecodeLine(line string) (Unit, bool) {
	if strings.TrimSpace(line) == "" {
		return Unit{}, false
	}

	// The DONE sentinel shows up both bare and inside the SSE envelope.
	if line == doneSentinel {
		return Unit{Type: UnitDone}, true
	}
	line = strings.TrimPrefix(line, ssePrefix)
	if line == doneSentinel {
		return Unit{Type: UnitDone}, true
	}

	switch {
	case strings.HasPrefix(line, prefixText):
		return Unit{Type: UnitText, Text: line[len(prefixText):]}, true

	case strings.HasPrefix(line, prefixTool):
		payload := line[len(prefixTool):]
		tools, err := decodeToolPayload(payload)
		if err != nil {
			logging.Logger.Error("skipping malformed tool unit", "error", err, "payload", payload)
			return Unit{}, false
		}
		return Unit{Type: UnitTool, Tools: tools}, true

	case strings.HasPrefix(line, prefixEvent):
		payload := line[len(prefixEvent):]
		var event chat.ThinkingEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			logging.Logger.Error("skipping malformed event unit", "error", err, "payload", payload)
			return Unit{}, false
		}
		return Unit{Type: UnitEvent, Event: event}, true
	}

	logging.Logger.Debug("ignoring unclassified stream line", "line", line)
	return Unit{}, false
}

// decodeToolPayload accepts either a single invocation object or an array.
func decodeToolPayload(payload string) ([]ToolUnit, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		var tools []ToolUnit
		if err := json.Unmarshal([]byte(trimmed), &tools); err != nil {
			return nil, err
		}
		return tools, nil
	}

	var tool ToolUnit
	if err := json.Unmarshal([]byte(trimmed), &tool); err != nil {
		return nil, err
	}
	return []ToolUnit{tool}, nil
}
