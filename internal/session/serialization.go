package session

import (
	"encoding/json"
	"fmt"
	"os"
)

// ResponseKind tags what the last reasoning cycle produced.
type ResponseKind string

const (
	ResponseNotStarted  ResponseKind = "not_started"
	ResponseText        ResponseKind = "text"
	ResponseToolCall    ResponseKind = "tool_call"
	ResponseEndOfStream ResponseKind = "end_of_stream"
)

// ParseResponseKind validates a persisted response kind tag. An empty tag
// is read as not_started.
func ParseResponseKind(s string) (ResponseKind, error) {
	switch k := ResponseKind(s); k {
	case ResponseNotStarted, ResponseText, ResponseToolCall, ResponseEndOfStream:
		return k, nil
	case "":
		return ResponseNotStarted, nil
	default:
		return "", fmt.Errorf("session: unknown response kind %q", s)
	}
}

func (k *ResponseKind) UnmarshalText(b []byte) error {
	parsed, err := ParseResponseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ReportKind is the type tag of a user report item.
type ReportKind string

const (
	ReportText   ReportKind = "str"
	ReportFigure ReportKind = "figure"
)

// FailedFigurePlaceholder replaces figures whose file can no longer be read.
const FailedFigurePlaceholder = "< Failed to deserialize figure >"

// ReportItem is one piece of user-facing tool output: text, or a figure stored on disk.
type ReportItem struct {
	Kind    ReportKind
	Content string
	Path    string
}

// TextItem builds a text report item.
func TextItem(s string) ReportItem { return ReportItem{Kind: ReportText, Content: s} }

// FigureItem builds a figure report item that points at an image file.
func FigureItem(path string) ReportItem { return ReportItem{Kind: ReportFigure, Path: path} }

type reportItemRecord struct {
	Type          ReportKind `json:"type"`
	ReportItemIdx int        `json:"report_item_idx"`
	Content       string     `json:"content,omitempty"`
	Path          string     `json:"path,omitempty"`
}

func encodeReport(items []ReportItem) ([]reportItemRecord, error) {
	if items == nil {
		return nil, nil
	}
	out := make([]reportItemRecord, 0, len(items))
	for idx, it := range items {
		switch it.Kind {
		case ReportText:
			out = append(out, reportItemRecord{Type: ReportText, ReportItemIdx: idx, Content: it.Content})
		case ReportFigure:
			out = append(out, reportItemRecord{Type: ReportFigure, ReportItemIdx: idx, Path: it.Path})
		default:
			return nil, fmt.Errorf("session: message serialization failed: unsupported report item type %q", it.Kind)
		}
	}
	return out, nil
}

func decodeReport(records []reportItemRecord) ([]ReportItem, error) {
	if records == nil {
		return nil, nil
	}
	out := make([]ReportItem, 0, len(records))
	for _, rec := range records {
		switch rec.Type {
		case ReportText:
			out = append(out, TextItem(rec.Content))
		case ReportFigure:
			if _, err := os.Stat(rec.Path); err != nil {
				out = append(out, TextItem(FailedFigurePlaceholder))
				continue
			}
			out = append(out, FigureItem(rec.Path))
		default:
			return nil, fmt.Errorf("session: message deserialization failed: unsupported report item type %q", rec.Type)
		}
	}
	return out, nil
}

type engineStateAlias EngineState

// UnmarshalJSON reads a missing response_kind as not_started.
func (s *EngineState) UnmarshalJSON(b []byte) error {
	var raw engineStateAlias
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = EngineState(raw)
	if s.ResponseKind == "" {
		s.ResponseKind = ResponseNotStarted
	}
	return nil
}

type messageAlias Message

type messageJSON struct {
	messageAlias
	ToolCallUserReport []reportItemRecord `json:"tool_call_user_report,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	report, err := encodeReport(m.ToolCallUserReport)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.Key, err)
	}
	return json.Marshal(messageJSON{messageAlias: messageAlias(m), ToolCallUserReport: report})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	report, err := decodeReport(raw.ToolCallUserReport)
	if err != nil {
		return fmt.Errorf("message %s: %w", raw.Key, err)
	}
	*m = Message(raw.messageAlias)
	m.ToolCallUserReport = report
	return nil
}

// Marshal encodes a session in its persisted form.
func Marshal(s *Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Unmarshal decodes a persisted session.
func Unmarshal(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.EngineParams == nil {
		s.EngineParams = Params{}
	}
	return &s, nil
}

// Clone deep-copies a session through its persisted form.
func Clone(s *Session) (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
