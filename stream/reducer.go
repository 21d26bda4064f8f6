package stream

import (
	"time"

	"github.com/polichat/polichat/chat"
)

// Timeline copy for tool lifecycle events.
const (
	toolEventPrefix       = "Ejecutando herramienta: "
	toolResultEventPrefix = "Resultado de herramienta: "
	unknownToolName       = "desconocida"
)

// Reduce folds one decoded unit into the assistant message and returns the
// updated value. The input is never mutated: content only grows, events only
// append, and tool invocations only progress calling -> result.
func Reduce(msg chat.Message, unit Unit) chat.Message {
	switch unit.Type {
	case UnitText:
		out := chat.CloneMessage(msg)
		out.Content += unit.Text
		return out
	case UnitTool:
		return reduceTools(msg, unit.Tools)
	case UnitEvent:
		out := chat.CloneMessage(msg)
		out.Events = append(out.Events, unit.Event)
		return out
	}
	return msg
}

// reduceTools merges a batch of invocation updates. Per batch the resulting
// order is: entries updated this batch in the order they were touched, then
// brand-new entries in arrival order, then untouched entries in their prior
// order. Active tools surface first in the UI.
func reduceTools(msg chat.Message, units []ToolUnit) chat.Message {
	out := chat.CloneMessage(msg)

	remaining := make([]chat.ToolInvocation, len(msg.ToolInvocations))
	copy(remaining, msg.ToolInvocations)

	var updated []chat.ToolInvocation
	var added []chat.ToolInvocation
	var events []chat.ThinkingEvent

	for _, unit := range units {
		idx := -1
		for i, existing := range remaining {
			if existing.ToolCallID == unit.ToolCallID {
				idx = i
				break
			}
		}

		if idx >= 0 {
			merged := mergeInvocation(remaining[idx], unit)
			updated = append(updated, merged)
			remaining = append(remaining[:idx], remaining[idx+1:]...)

			if merged.State == chat.ToolStateResult {
				events = append(events, chat.ThinkingEvent{
					ID:        chat.NewEventID(),
					Timestamp: time.Now(),
					Type:      chat.EventTypeToolResult,
					Message:   toolResultEventPrefix + displayToolName(merged.ToolName),
				})
			}
			continue
		}

		fresh := newInvocation(unit)
		added = append(added, fresh)
		events = append(events, chat.ThinkingEvent{
			ID:        chat.NewEventID(),
			Timestamp: time.Now(),
			Type:      chat.EventTypeTool,
			Message:   toolEventPrefix + displayToolName(fresh.ToolName),
		})
	}

	final := make([]chat.ToolInvocation, 0, len(updated)+len(added)+len(remaining))
	final = append(final, updated...)
	final = append(final, added...)
	final = append(final, remaining...)

	out.ToolInvocations = final
	out.Events = append(out.Events, events...)
	return out
}

// newInvocation materializes a first-seen invocation with wire defaults.
func newInvocation(unit ToolUnit) chat.ToolInvocation {
	inv := chat.ToolInvocation{
		ToolCallID: unit.ToolCallID,
		ToolName:   unit.ToolName,
		ToolArgs:   unit.ToolArgs,
		State:      chat.ToolStateCalling,
		CreatedAt:  time.Now(),
	}
	if inv.ToolArgs == nil {
		inv.ToolArgs = map[string]interface{}{}
	}
	if unit.State != "" {
		inv.State = chat.ToolInvocationState(unit.State)
	}
	if unit.CreatedAt != nil {
		inv.CreatedAt = *unit.CreatedAt
	}
	if inv.State == chat.ToolStateResult {
		inv.Result = unit.Result
	}
	return inv
}

// mergeInvocation folds an update into an existing invocation. Fields absent
// from the update keep their prior value; in particular an absent state never
// regresses an invocation that already reached result.
func mergeInvocation(existing chat.ToolInvocation, unit ToolUnit) chat.ToolInvocation {
	merged := existing
	if unit.ToolName != "" {
		merged.ToolName = unit.ToolName
	}
	if unit.ToolArgs != nil {
		merged.ToolArgs = unit.ToolArgs
	}
	if unit.State != "" {
		merged.State = chat.ToolInvocationState(unit.State)
	}
	if unit.CreatedAt != nil {
		merged.CreatedAt = *unit.CreatedAt
	}
	if chat.ToolInvocationState(unit.State) == chat.ToolStateResult {
		merged.Result = unit.Result
	}
	return merged
}

func displayToolName(name string) string {
	if name == "" {
		return unknownToolName
	}
	return name
}
