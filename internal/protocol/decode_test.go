package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeTextFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			name: "log",
			data: `{"type":"log","level":"warning","message":"slow page","timestamp":"2025-01-01T10:00:00"}`,
			want: Log{Level: "warning", Message: "slow page", Timestamp: "2025-01-01T10:00:00"},
		},
		{
			name: "progress",
			data: `{"type":"progress","stage":"scan","current":2,"total":5,"percentage":40,"message":"scanning page"}`,
			want: Progress{Stage: "scan", Current: 2, Total: 5, Percentage: 40, Message: "scanning page"},
		},
		{
			name: "pdf status",
			data: `{"type":"pdf_status","pdf_name":"doc1.pdf","status":"filtered","reason":"matched keyword"}`,
			want: PDFStatus{PDFName: "doc1.pdf", Status: "filtered", Reason: "matched keyword"},
		},
		{
			name: "completion",
			data: `{"type":"completion","timestamp":"2025-01-01T11:00:00"}`,
			want: Completion{Timestamp: "2025-01-01T11:00:00"},
		},
		{
			name: "unknown type",
			data: `{"type":"screenshot","image":"..."}`,
			want: Unknown{Kind: "screenshot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Frame{Data: []byte(tt.data)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"level":"info","message":"no type"}`,
		`{"type":"progress","current":"two"}`,
		``,
	} {
		_, err := Decode(Frame{Data: []byte(data)})
		assert.ErrorIs(t, err, ErrMalformedFrame, "input %q", data)
	}
}

func TestDecodeBinaryFrame(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"type":     "pdf_status",
		"pdf_name": "doc2.pdf",
		"status":   "skipped",
		"reason":   "no match",
	})
	require.NoError(t, err)

	msg, err := Decode(Frame{Binary: true, Data: data})
	require.NoError(t, err)
	assert.Equal(t, PDFStatus{PDFName: "doc2.pdf", Status: "skipped", Reason: "no match"}, msg)

	_, err = Decode(Frame{Binary: true, Data: []byte{0xc1}})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeDecodeBothEncodings(t *testing.T) {
	msg := Progress{Stage: "extracting", Current: 3, Total: 7, Percentage: 42, Message: "Extracting forms"}
	for _, binary := range []bool{false, true} {
		f, err := Encode(msg, binary)
		require.NoError(t, err)
		assert.Equal(t, binary, f.Binary)

		got, err := Decode(f)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestDecodeLooseExtras(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			name: "numeric completion timestamp",
			data: `{"type":"completion","timestamp":1734000000}`,
			want: Completion{Timestamp: "1734000000"},
		},
		{
			name: "completion with odd fields",
			data: `{"type":"completion","message":5,"details":[1,2]}`,
			want: Completion{},
		},
		{
			name: "fractional percentage",
			data: `{"type":"progress","stage":"scan","current":2,"total":5,"percentage":40.5,"message":"m"}`,
			want: Progress{Stage: "scan", Current: 2, Total: 5, Percentage: 41, Message: "m"},
		},
		{
			name: "string percentage",
			data: `{"type":"progress","stage":"scan","current":1,"total":4,"percentage":"25%","message":"m"}`,
			want: Progress{Stage: "scan", Current: 1, Total: 4, Percentage: 25, Message: "m"},
		},
		{
			name: "string details",
			data: `{"type":"pdf_status","pdf_name":"a.pdf","status":"skipped","reason":"r","details":"none"}`,
			want: PDFStatus{PDFName: "a.pdf", Status: "skipped", Reason: "r"},
		},
		{
			name: "object timestamp",
			data: `{"type":"log","level":"info","message":"hi","timestamp":{"sec":1}}`,
			want: Log{Level: "info", Message: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Frame{Data: []byte(tt.data)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBinaryLooseExtras(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"type":      "pdf_status",
		"pdf_name":  "doc3.pdf",
		"status":    "filtered",
		"reason":    "keyword",
		"timestamp": 1734000000,
		"details":   map[string]any{"pages": 3},
	})
	require.NoError(t, err)

	msg, err := Decode(Frame{Binary: true, Data: data})
	require.NoError(t, err)
	got := msg.(PDFStatus)
	assert.Equal(t, "doc3.pdf", got.PDFName)
	assert.Equal(t, "1734000000", got.Timestamp)
	assert.Contains(t, got.Details, "pages")
}
