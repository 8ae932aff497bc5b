package model

import (
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

type FileMetadata struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ResponseValue is the polymorphic answer payload.
type ResponseValue struct {
	Value  string        `json:"value,omitempty"`
	Text   string        `json:"text,omitempty"`
	Number *float64      `json:"number,omitempty"`
	Date   string        `json:"date,omitempty"`
	File   *FileMetadata `json:"file,omitempty"`
}

// Scalar extracts a comparable value: value, then text, then number, then date.
func (v ResponseValue) Scalar() (string, bool) {
	switch {
	case v.Value != "":
		return v.Value, true
	case v.Text != "":
		return v.Text, true
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64), true
	case v.Date != "":
		return v.Date, true
	}
	return "", false
}

// Numeric prefers the number field and falls back to parsing the scalar.
func (v ResponseValue) Numeric() (float64, bool) {
	if v.Number != nil {
		return *v.Number, true
	}
	s, ok := v.Scalar()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v ResponseValue) IsBlank() bool {
	if v.File != nil && v.File.Filename != "" {
		return false
	}
	s, ok := v.Scalar()
	return !ok || strings.TrimSpace(s) == ""
}

type Response struct {
	BaseModel
	SessionID         uint                              `gorm:"not null;uniqueIndex:idx_response_session_question" json:"sessionId"`
	QuestionID        uint                              `gorm:"not null;uniqueIndex:idx_response_session_question" json:"questionId"`
	Payload           datatypes.JSONType[ResponseValue] `json:"payload"`
	SelectedOptionIDs datatypes.JSONSlice[uint]         `json:"selectedOptionIds"`
}

func (Response) TableName() string {
	return "responses"
}

func (r *Response) Value() ResponseValue {
	return r.Payload.Data()
}

func (r *Response) SetValue(v ResponseValue) {
	r.Payload = datatypes.NewJSONType(v)
}

func (r *Response) HasSelection() bool {
	return len(r.SelectedOptionIDs) > 0
}

// Answered applies the per-type completeness rule: choice questions need a
// selection, everything else a non-blank value.
func (r *Response) Answered(t QuestionType) bool {
	if r == nil {
		return false
	}
	if t.IsChoice() {
		return r.HasSelection()
	}
	return !r.Value().IsBlank()
}
