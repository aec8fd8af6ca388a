// Package message defines the JSON messages sent to the control server.
// Every message is an Envelope whose data member is one of the payloads
// below.
package message

import (
	"encoding/json"
	"fmt"
)

// SendData is the source marker the control server expects in every payload.
const SendData = "flowics"

// ActionSetCurrentState is the action of a StatePayload.
const ActionSetCurrentState = "set current state"

// Format selects the payload shape of a binding.
type Format string

const (
	FormatState  Format = "state"  // StatePayload, two-letter state code
	FormatLegacy Format = "legacy" // LegacyPayload, postal code "1".."3"
)

// Envelope wraps every outbound payload: {"data": <payload>}.
type Envelope struct {
	Data any `json:"data"`
}

// StatePayload selects a US state on the control server.
type StatePayload struct {
	Action      string `json:"action"`
	StatePostal string `json:"statePostal"`
	SendData    string `json:"sendData"`
}

// LegacyPayload is the first-generation message keyed by a postal code.
type LegacyPayload struct {
	PostalCode string `json:"postalCode"`
	SendData   string `json:"sendData"`
}

// SetCurrentState returns the payload selecting the given state code.
func SetCurrentState(code string) StatePayload {
	return StatePayload{Action: ActionSetCurrentState, StatePostal: code, SendData: SendData}
}

// Legacy returns the first-generation payload for a postal code.
func Legacy(code string) LegacyPayload {
	return LegacyPayload{PostalCode: code, SendData: SendData}
}

// Build returns the payload for value in the given format.
func Build(f Format, value string) (any, error) {
	switch f {
	case FormatState, "":
		if !IsStateCode(value) {
			return nil, fmt.Errorf("message: %q is not a two-letter state code", value)
		}
		return SetCurrentState(value), nil
	case FormatLegacy:
		if value == "" {
			return nil, fmt.Errorf("message: empty postal code")
		}
		return Legacy(value), nil
	}
	return nil, fmt.Errorf("message: unknown format %q", f)
}

// IsStateCode reports whether s looks like a two-letter US state code.
func IsStateCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Marshal wraps payload in an Envelope and encodes it.
func Marshal(payload any) ([]byte, error) {
	data, err := json.Marshal(Envelope{Data: payload})
	if err != nil {
		return nil, fmt.Errorf("message: marshal: %w", err)
	}
	return data, nil
}
