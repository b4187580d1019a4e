// Package protocol defines the JSON envelope exchanged over a client
// connection and the action tags the dispatcher switches on.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxMessageSize is the maximum inbound envelope size in bytes (64KB).
const MaxMessageSize = 65536

// Actions understood by the dispatcher. Anything else takes the
// unknown-action fallback path.
const (
	ActionGetLoginURL  = "getLoginURL"
	ActionLogin        = "login"
	ActionSetUser      = "setUser"
	ActionGetPlaylists = "getPlaylists"
	ActionGetUsers     = "getUsers"
	ActionLogout       = "logout"
	ActionAnswer       = "answer"
	ActionCreateQuiz   = "createQuiz"
)

var ErrMissingAction = errors.New("protocol: missing action")
var ErrMissingRequestID = errors.New("protocol: missing request_id")

// Envelope is the wire unit in both directions. Data is opaque to the
// routing layer; its shape depends on Action. Responses echo the Action
// and RequestID of the request they answer.
type Envelope struct {
	Action    string          `json:"action"`
	RequestID int             `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// wireEnvelope detects absent fields during parsing. A request without a
// request_id cannot be correlated, so it is rejected rather than defaulted.
type wireEnvelope struct {
	Action    string          `json:"action"`
	RequestID *int            `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// Parse decodes an inbound envelope. A malformed document, an empty or
// missing action, or a missing request_id is a protocol parse failure.
func Parse(raw []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	if w.Action == "" {
		return nil, ErrMissingAction
	}
	if w.RequestID == nil {
		return nil, ErrMissingRequestID
	}
	return &Envelope{Action: w.Action, RequestID: *w.RequestID, Data: w.Data}, nil
}

// NewEnvelope builds an outbound envelope, marshaling data as the payload.
// A nil data leaves the data field absent on the wire.
func NewEnvelope(action string, requestID int, data any) (*Envelope, error) {
	env := &Envelope{Action: action, RequestID: requestID}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal data: %w", err)
	}
	env.Data = raw
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return string(raw), nil
}

// LoginData carries the authorization code obtained from the content
// provider's login redirect.
type LoginData struct {
	Code string `json:"code"`
}

// SetUserData rebinds a connection to a previously persisted identity.
type SetUserData struct {
	ID int64 `json:"id"`
}

// CreateQuizData names the invited players, the source playlist, and how
// many questions to generate.
type CreateQuizData struct {
	Users      []int64 `json:"users"`
	Playlist   string  `json:"playlist"`
	NbrOfSongs int     `json:"nbrOfSongs"`
}
