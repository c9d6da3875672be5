package bridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandMessage is sent from the supervisor to a bridge to call a method.
// Topic: {prefix}/instrument/{id}/command
type CommandMessage struct {
	// ID correlates the call with its AckMessage.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Instrument is the bridge id the call is addressed to.
	Instrument string `json:"instrument"`

	// Method is the remote method, e.g. "close_slit" or "reading".
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`

	Source string `json:"source"`
}

// AckStatus is the outcome of a call.
type AckStatus string

const (
	// AckAccepted means the call completed; Result holds its return value.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the instrument refused or failed the call.
	AckFailed AckStatus = "failed"

	// AckTimeout means the instrument did not finish within the bridge's own limit.
	AckTimeout AckStatus = "timeout"
)

// AckMessage answers a CommandMessage.
// Topic: {prefix}/instrument/{id}/ack
type AckMessage struct {
	CommandID  string          `json:"command_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Instrument string          `json:"instrument"`
	Status     AckStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *AckError       `json:"error,omitempty"`
}

// AckError details a failed call.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes a bridge may report.
const (
	ErrCodeInstrumentUnreachable = "INSTRUMENT_UNREACHABLE"
	ErrCodeInvalidMethod         = "INVALID_METHOD"
	ErrCodeInvalidArgs           = "INVALID_ARGS"
	ErrCodeInstrumentError       = "INSTRUMENT_ERROR"
)

// EventMessage is an instrument notification.
// Topic: {prefix}/instrument/{id}/event
type EventMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Status    string    `json:"status,omitempty"`
	State     string    `json:"state,omitempty"`
	Program   string    `json:"program,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// commandSource identifies the supervisor in CommandMessage.Source.
const commandSource = "supervisor"

// NewCommand builds a call with a fresh id.
func NewCommand(instrument, method string, args map[string]any) CommandMessage {
	return CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Instrument: instrument,
		Method:     method,
		Args:       args,
		Source:     commandSource,
	}
}

// NewAck builds a successful answer to cmd. result is marshalled to JSON;
// nil leaves Result empty.
func NewAck(cmd CommandMessage, result any) (AckMessage, error) {
	ack := AckMessage{
		CommandID:  cmd.ID,
		Timestamp:  time.Now().UTC(),
		Instrument: cmd.Instrument,
		Status:     AckAccepted,
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return AckMessage{}, err
		}
		ack.Result = raw
	}
	return ack, nil
}

// NewAckError builds a failed answer to cmd.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	return AckMessage{
		CommandID:  cmd.ID,
		Timestamp:  time.Now().UTC(),
		Instrument: cmd.Instrument,
		Status:     AckFailed,
		Error:      &AckError{Code: code, Message: message},
	}
}
