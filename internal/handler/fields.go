package handler

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hushline/hushline/internal/model"
)

const (
	maxTextLength      = 1000
	maxMultilineLength = 10000
)

// defaultFields is the form shown for usernames that have not defined one.
func defaultFields() []model.FieldDefinition {
	return []model.FieldDefinition{
		{ID: "contact_method", Label: "Contact Method", FieldType: model.FieldText, Enabled: true, Choices: []string{}, SortOrder: 0},
		{ID: "content", Label: "Message", FieldType: model.FieldMultilineText, Required: true, Enabled: true, Choices: []string{}, SortOrder: 1},
	}
}

// validateValues checks submitted answers against the definitions and
// returns them in form order. Unknown field IDs are rejected.
func validateValues(defs []model.FieldDefinition, submitted map[string][]string) ([]model.FieldValue, map[string]string) {
	errs := make(map[string]string)
	known := make(map[string]bool, len(defs))
	out := make([]model.FieldValue, 0, len(defs))

	for _, def := range defs {
		known[def.ID] = true

		var vals []string
		for _, v := range submitted[def.ID] {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}

		if len(vals) == 0 {
			if def.Required {
				errs[def.ID] = "must be provided"
			}
			continue
		}

		if msg := checkField(def, vals); msg != "" {
			errs[def.ID] = msg
			continue
		}
		out = append(out, model.FieldValue{FieldID: def.ID, Label: def.Label, Values: vals})
	}

	for id := range submitted {
		if !known[id] {
			errs[id] = "unknown field"
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func checkField(def model.FieldDefinition, vals []string) string {
	switch def.FieldType {
	case model.FieldText, model.FieldMultilineText:
		if len(vals) > 1 {
			return "accepts a single value"
		}
		limit := maxTextLength
		if def.FieldType == model.FieldMultilineText {
			limit = maxMultilineLength
		}
		if utf8.RuneCountInString(vals[0]) > limit {
			return fmt.Sprintf("must not be more than %d characters", limit)
		}
	case model.FieldChoiceSingle, model.FieldChoiceMultiple:
		if def.FieldType == model.FieldChoiceSingle && len(vals) > 1 {
			return "accepts a single choice"
		}
		seen := make(map[string]bool, len(vals))
		for _, v := range vals {
			if !slices.Contains(def.Choices, v) {
				return fmt.Sprintf("%q is not one of the choices", v)
			}
			if seen[v] {
				return fmt.Sprintf("%q was chosen more than once", v)
			}
			seen[v] = true
		}
	default:
		panic(fmt.Sprintf("programming error: FieldType value %q is not handled", def.FieldType))
	}
	return ""
}

// formatMessage renders the answers as the stored message body.
func formatMessage(values []model.FieldValue) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(v.Label)
		b.WriteString("\n")
		b.WriteString(strings.Join(v.Values, ", "))
	}
	return b.String()
}

type fieldRequest struct {
	UsernameID string          `json:"username_id"`
	Label      string          `json:"label" validate:"required,max=500"`
	FieldType  model.FieldType `json:"field_type" validate:"required"`
	Required   bool            `json:"required"`
	Enabled    *bool           `json:"enabled"`
	Choices    []string        `json:"choices" validate:"omitempty,max=50,dive,required,max=500"`
	SortOrder  int             `json:"sort_order" validate:"min=0"`
}

// definition checks that choices fit the field type and returns the
// definition to persist.
func (f fieldRequest) definition() (*model.FieldDefinition, map[string]string) {
	enabled := f.Enabled == nil || *f.Enabled
	def := &model.FieldDefinition{
		UsernameID: f.UsernameID,
		Label:      strings.TrimSpace(f.Label),
		FieldType:  f.FieldType,
		Required:   f.Required,
		Enabled:    enabled,
		Choices:    []string{},
		SortOrder:  f.SortOrder,
	}
	if def.Label == "" {
		return nil, map[string]string{"label": "must be provided"}
	}

	if !f.FieldType.HasChoices() {
		if len(f.Choices) > 0 {
			return nil, map[string]string{"choices": fmt.Sprintf("are not allowed for %s fields", f.FieldType.Label())}
		}
		return def, nil
	}

	for _, c := range f.Choices {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, map[string]string{"choices": "must not be blank"}
		}
		if slices.Contains(def.Choices, c) {
			return nil, map[string]string{"choices": fmt.Sprintf("%q is listed more than once", c)}
		}
		def.Choices = append(def.Choices, c)
	}
	if len(def.Choices) == 0 {
		return nil, map[string]string{"choices": fmt.Sprintf("at least one is required for %s fields", f.FieldType.Label())}
	}
	return def, nil
}
