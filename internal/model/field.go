package model

import "fmt"

// FieldType is the input kind of a custom message field.
type FieldType string

const (
	FieldText           FieldType = "text"
	FieldMultilineText  FieldType = "multiline_text"
	FieldChoiceSingle   FieldType = "choice_single"
	FieldChoiceMultiple FieldType = "choice_multiple"
)

func FieldTypes() []FieldType {
	return []FieldType{FieldText, FieldMultilineText, FieldChoiceSingle, FieldChoiceMultiple}
}

func ParseFieldType(s string) (FieldType, error) {
	for _, ft := range FieldTypes() {
		if string(ft) == s {
			return ft, nil
		}
	}
	return "", fmt.Errorf("%w: invalid FieldType %q", ErrInvalidValue, s)
}

func (f FieldType) Label() string {
	switch f {
	case FieldText:
		return "Text"
	case FieldMultilineText:
		return "Multiline Text"
	case FieldChoiceSingle:
		return "Single Selection"
	case FieldChoiceMultiple:
		return "Multiple Selection"
	}
	panic(unhandled("FieldType", string(f)))
}

// HasChoices reports whether values must come from the definition's choices.
func (f FieldType) HasChoices() bool {
	switch f {
	case FieldText, FieldMultilineText:
		return false
	case FieldChoiceSingle, FieldChoiceMultiple:
		return true
	}
	panic(unhandled("FieldType", string(f)))
}

func (f FieldType) MarshalText() ([]byte, error) { return []byte(f), nil }

func (f *FieldType) UnmarshalText(b []byte) error {
	v, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// FieldDefinition describes one input on a username's submission form.
type FieldDefinition struct {
	ID         string    `json:"id" db:"id"`
	UsernameID string    `json:"-" db:"username_id"`
	Label      string    `json:"label" db:"label"`
	FieldType  FieldType `json:"field_type" db:"field_type"`
	Required   bool      `json:"required" db:"required"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	Choices    []string  `json:"choices" db:"-"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
}

// FieldValue is a submitted answer to a FieldDefinition.
type FieldValue struct {
	FieldID string   `json:"field_id"`
	Label   string   `json:"label"`
	Values  []string `json:"values"`
}
