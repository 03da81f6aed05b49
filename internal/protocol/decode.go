package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformedFrame is returned for frames that cannot be decoded or lack a type.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one raw message read from the push channel.
type Frame struct {
	Binary bool // msgpack-encoded when true, JSON text otherwise
	Data   []byte
}

// envelope carries only the discriminant.
type envelope struct {
	Type string `json:"type" msgpack:"type"`
}

// extras are fields the backend may attach to any message. Their types vary between
// backend versions, so they are decoded loosely and converted afterwards.
type extras struct {
	Percentage any `json:"percentage" msgpack:"percentage"`
	Timestamp  any `json:"timestamp" msgpack:"timestamp"`
	Details    any `json:"details" msgpack:"details"`
}

type logFields struct {
	Level   string `json:"level" msgpack:"level"`
	Message string `json:"message" msgpack:"message"`
	extras
}

type progressFields struct {
	Stage   string `json:"stage" msgpack:"stage"`
	Current int    `json:"current" msgpack:"current"`
	Total   int    `json:"total" msgpack:"total"`
	Message string `json:"message" msgpack:"message"`
	extras
}

type pdfStatusFields struct {
	PDFName string `json:"pdf_name" msgpack:"pdf_name"`
	Status  string `json:"status" msgpack:"status"`
	Reason  string `json:"reason" msgpack:"reason"`
	extras
}

func unmarshal(f Frame, v any) error {
	if f.Binary {
		return msgpack.Unmarshal(f.Data, v)
	}
	return json.Unmarshal(f.Data, v)
}

// Decode parses a frame once and returns its typed message. Contract fields are strict;
// a completion needs nothing but its type. Unrecognized types decode to Unknown without error.
func Decode(f Frame) (Message, error) {
	var env envelope
	if err := unmarshal(f, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch env.Type {
	case TypeLog:
		var w logFields
		if err := unmarshal(f, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Log{Level: w.Level, Message: w.Message, Timestamp: asTimestamp(w.Timestamp)}, nil
	case TypeProgress:
		var w progressFields
		if err := unmarshal(f, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Progress{
			Stage:      w.Stage,
			Current:    w.Current,
			Total:      w.Total,
			Percentage: asPercentage(w.Percentage),
			Message:    w.Message,
			Timestamp:  asTimestamp(w.Timestamp),
		}, nil
	case TypePDFStatus:
		var w pdfStatusFields
		if err := unmarshal(f, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return PDFStatus{
			PDFName:   w.PDFName,
			Status:    w.Status,
			Reason:    w.Reason,
			Details:   asDetails(w.Details),
			Timestamp: asTimestamp(w.Timestamp),
		}, nil
	case TypeCompletion:
		var x extras
		// extras are best effort
		_ = unmarshal(f, &x)
		return Completion{Timestamp: asTimestamp(x.Timestamp)}, nil
	default:
		return Unknown{Kind: env.Type}, nil
	}
}

// asTimestamp keeps strings and renders numeric epochs. Anything else becomes "".
func asTimestamp(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func asPercentage(v any) int {
	switch p := v.(type) {
	case float64:
		return int(math.Round(p))
	case float32:
		return int(math.Round(float64(p)))
	case int8:
		return int(p)
	case int16:
		return int(p)
	case int32:
		return int(p)
	case int64:
		return int(p)
	case int:
		return p
	case uint8:
		return int(p)
	case uint16:
		return int(p)
	case uint32:
		return int(p)
	case uint64:
		return int(p)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(p), "%"), 64)
		if err != nil {
			return 0
		}
		return int(math.Round(f))
	default:
		return 0
	}
}

func asDetails(v any) map[string]any {
	switch d := v.(type) {
	case map[string]any:
		return d
	case map[any]any:
		out := make(map[string]any, len(d))
		for k, val := range d {
			out[fmt.Sprint(k)] = val
		}
		return out
	default:
		return nil
	}
}

// outbound is the wire shape the development server emits.
type outbound struct {
	Type       string         `json:"type" msgpack:"type"`
	Level      string         `json:"level,omitempty" msgpack:"level,omitempty"`
	Message    string         `json:"message,omitempty" msgpack:"message,omitempty"`
	Stage      string         `json:"stage,omitempty" msgpack:"stage,omitempty"`
	Current    int            `json:"current,omitempty" msgpack:"current,omitempty"`
	Total      int            `json:"total,omitempty" msgpack:"total,omitempty"`
	Percentage int            `json:"percentage,omitempty" msgpack:"percentage,omitempty"`
	PDFName    string         `json:"pdf_name,omitempty" msgpack:"pdf_name,omitempty"`
	Status     string         `json:"status,omitempty" msgpack:"status,omitempty"`
	Reason     string         `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty" msgpack:"details,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// Encode renders a message as a frame. The development server uses it to emit traffic.
func Encode(m Message, binary bool) (Frame, error) {
	w := outbound{Type: m.Type()}
	switch v := m.(type) {
	case Log:
		w.Level, w.Message, w.Timestamp = v.Level, v.Message, v.Timestamp
	case Progress:
		w.Stage, w.Current, w.Total = v.Stage, v.Current, v.Total
		w.Percentage, w.Message, w.Timestamp = v.Percentage, v.Message, v.Timestamp
	case PDFStatus:
		w.PDFName, w.Status, w.Reason = v.PDFName, v.Status, v.Reason
		w.Details, w.Timestamp = v.Details, v.Timestamp
	case Completion:
		w.Timestamp = v.Timestamp
	}

	var data []byte
	var err error
	if binary {
		data, err = msgpack.Marshal(&w)
	} else {
		data, err = json.Marshal(&w)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s message: %w", w.Type, err)
	}
	return Frame{Binary: binary, Data: data}, nil
}
