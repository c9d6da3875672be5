package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the root of every supervisor topic when none is configured.
const DefaultPrefix = "chimera"

// Topics builds the supervisor's MQTT topic names under one prefix.
//
// Instrument bridges use a per-instrument scheme:
//
//	{prefix}/instrument/{id}/command   supervisor -> bridge (method calls)
//	{prefix}/instrument/{id}/ack       bridge -> supervisor (call results)
//	{prefix}/instrument/{id}/event     bridge -> supervisor (state events)
//
// Operator traffic lives under {prefix}/supervisor/.
type Topics struct {
	Prefix string
}

// NewTopics returns builders for prefix, or DefaultPrefix when empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// InstrumentCommand returns the topic a bridge reads method calls from.
//
// Example: chimera/instrument/dome-0/command
func (t Topics) InstrumentCommand(id string) string {
	return fmt.Sprintf("%s/instrument/%s/command", t.prefix(), id)
}

// InstrumentAck returns the topic a bridge answers method calls on.
//
// Example: chimera/instrument/dome-0/ack
func (t Topics) InstrumentAck(id string) string {
	return fmt.Sprintf("%s/instrument/%s/ack", t.prefix(), id)
}

// InstrumentEvent returns the topic a bridge publishes instrument events on.
//
// Example: chimera/instrument/tel-0/event
func (t Topics) InstrumentEvent(id string) string {
	return fmt.Sprintf("%s/instrument/%s/event", t.prefix(), id)
}

// AllInstrumentAcks matches the ack topic of every bridge.
func (t Topics) AllInstrumentAcks() string {
	return fmt.Sprintf("%s/instrument/+/ack", t.prefix())
}

// AllInstrumentEvents matches the event topic of every bridge.
func (t Topics) AllInstrumentEvents() string {
	return fmt.Sprintf("%s/instrument/+/event", t.prefix())
}

// Status is the retained online/offline topic of the supervisor (also the LWT).
func (t Topics) Status() string {
	return fmt.Sprintf("%s/supervisor/status", t.prefix())
}

// Broadcast carries operator messages.
func (t Topics) Broadcast() string {
	return fmt.Sprintf("%s/supervisor/broadcast", t.prefix())
}

// Photo carries photo announcements (path and caption).
func (t Topics) Photo() string {
	return fmt.Sprintf("%s/supervisor/photo", t.prefix())
}

// Ask carries operator questions.
func (t Topics) Ask() string {
	return fmt.Sprintf("%s/supervisor/ask", t.prefix())
}

// Answer carries operator answers to questions.
func (t Topics) Answer() string {
	return fmt.Sprintf("%s/supervisor/answer", t.prefix())
}

// Command carries operator command lines such as "/run CloseAll".
func (t Topics) Command() string {
	return fmt.Sprintf("%s/supervisor/command", t.prefix())
}

// InstrumentID extracts the instrument id from an instrument topic, or ""
// when topic is not one.
func (t Topics) InstrumentID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/instrument/")
	if !ok {
		return ""
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return ""
	}
	return rest[:i]
}

// All matches every supervisor topic. Use with caution.
func (t Topics) All() string {
	return t.prefix() + "/#"
}
