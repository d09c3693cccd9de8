package transport

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
)

// Message sources. Correlated exchanges started by us carry SourceBrowser in
// both directions; unsolicited messages from the app carry SourceApp.
const (
	SourceBrowser = "browser"
	SourceApp     = "app"
)

// Message types.
const (
	TypeChangeObserved     = "changeObserved"
	TypeGetArrangement     = "getArrangement"
	TypeSetArrangement     = "setArrangement"
	TypeResponse           = "response"
	TypeArrangementChanged = "arrangementChanged"
)

// StatusOK marks a successful response.
const StatusOK = "OK"

// HandleField names the id field of arrangements on the wire.
const HandleField = "handle"

// Handle is the app's id for a window, valid for one connection.
type Handle string

// Message is the wire envelope exchanged with the app.
type Message struct {
	Source string          `json:"source"`
	ID     int64           `json:"id"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Status string          `json:"status,omitempty"`
}

// Request is one of the typed request payloads.
type Request interface {
	Type() string
}

// ChangeObservedRequest asks the app to start and stop tracking windows.
type ChangeObservedRequest struct {
	Info observe.Info[Handle]
}

func (ChangeObservedRequest) Type() string { return TypeChangeObserved }

func (r ChangeObservedRequest) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(r.Info.Clone())
}

func (r *ChangeObservedRequest) UnmarshalJSON(data []byte) error {
	return sonic.Unmarshal(data, &r.Info)
}

// GetArrangementRequest asks for the arrangement of some or all windows.
// All requests every window; otherwise Handles lists the windows wanted.
type GetArrangementRequest struct {
	All        bool
	Handles    []Handle
	InObserved bool
}

func (GetArrangementRequest) Type() string { return TypeGetArrangement }

type getArrangementJSON struct {
	Handles    interface{} `json:"handles"`
	InObserved bool        `json:"inObserved"`
}

func (r GetArrangementRequest) MarshalJSON() ([]byte, error) {
	var handles interface{} = "all"
	if !r.All {
		hs := r.Handles
		if hs == nil {
			hs = []Handle{}
		}
		handles = hs
	}
	return sonic.Marshal(getArrangementJSON{Handles: handles, InObserved: r.InObserved})
}

func (r *GetArrangementRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Handles    json.RawMessage `json:"handles"`
		InObserved bool            `json:"inObserved"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.InObserved = raw.InObserved
	var all string
	if err := sonic.Unmarshal(raw.Handles, &all); err == nil {
		if all != "all" {
			return fmt.Errorf("invalid handles selector %q", all)
		}
		r.All, r.Handles = true, nil
		return nil
	}
	r.All = false
	return sonic.Unmarshal(raw.Handles, &r.Handles)
}

// SetArrangementRequest asks the app to apply an arrangement.
type SetArrangementRequest struct {
	Arrangement *arrangement.Serializable[Handle]
}

func (SetArrangementRequest) Type() string { return TypeSetArrangement }

func (r SetArrangementRequest) MarshalJSON() ([]byte, error) {
	if r.Arrangement == nil {
		return sonic.Marshal(arrangement.Serializable[Handle]{IDField: HandleField})
	}
	return sonic.Marshal(*r.Arrangement)
}

func (r *SetArrangementRequest) UnmarshalJSON(data []byte) error {
	r.Arrangement = &arrangement.Serializable[Handle]{IDField: HandleField}
	return sonic.Unmarshal(data, r.Arrangement)
}

// DecodeRequest decodes the value of a request message into its typed form.
func DecodeRequest(msg *Message) (Request, error) {
	var req Request
	switch msg.Type {
	case TypeChangeObserved:
		req = &ChangeObservedRequest{}
	case TypeGetArrangement:
		req = &GetArrangementRequest{}
	case TypeSetArrangement:
		req = &SetArrangementRequest{}
	default:
		return nil, fmt.Errorf("unknown request type %q", msg.Type)
	}
	if err := sonic.Unmarshal(msg.Value, req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return req, nil
}
