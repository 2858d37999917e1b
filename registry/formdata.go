package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/liamcoop/formrules/rules"
)

// FieldViolation is one schema failure for a submitted form.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Keyword string `json:"keyword"`
}

// EffectiveSchema returns the form's schema with the schema modifications
// produced by formData applied.
func (f *Form) EffectiveSchema(ctx context.Context, formData map[string]any) map[string]any {
	return f.Engine.ApplySchemaRules(ctx, f.Schema, formData)
}

// ValidateFormData checks formData against the form's effective schema. It
// returns the violations sorted by field, or none when the data is valid.
func (m *Manager) ValidateFormData(ctx context.Context, formID string, formData map[string]any) ([]FieldViolation, error) {
	form, err := m.GetForm(formID)
	if err != nil {
		return nil, err
	}

	validator := form.validator
	mods := form.Engine.EvaluateRules(ctx, formData, "").SchemaModifications
	if len(mods) > 0 {
		effective := rules.MergeSchemaModifications(form.Schema, mods)
		if validator, err = compileSchema(formID, effective); err != nil {
			return nil, fmt.Errorf("effective schema for form %s: %w", formID, err)
		}
	}

	doc, err := jsonDocument(formData)
	if err != nil {
		return nil, err
	}

	err = validator.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, fmt.Errorf("failed to validate form data: %w", err)
	}

	violations := flattenViolations(verr, nil)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return violations, nil
}

// jsonDocument converts formData to the values encoding/json produces.
func jsonDocument(formData map[string]any) (any, error) {
	if formData == nil {
		formData = map[string]any{}
	}
	data, err := json.Marshal(formData)
	if err != nil {
		return nil, fmt.Errorf("form data is not JSON serializable: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode form data: %w", err)
	}
	return doc, nil
}

func flattenViolations(verr *jsonschema.ValidationError, out []FieldViolation) []FieldViolation {
	if len(verr.Causes) == 0 {
		return append(out, FieldViolation{
			Field:   pointerToPath(verr.InstanceLocation),
			Message: verr.Message,
			Keyword: lastSegment(verr.KeywordLocation),
		})
	}
	for _, cause := range verr.Causes {
		out = flattenViolations(cause, out)
	}
	return out
}

// pointerToPath turns a JSON pointer such as /items/0/name into items[0].name.
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}

	var b strings.Builder
	for i, seg := range strings.Split(ptr, "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(seg); err == nil && i > 0 {
			b.WriteString("[" + seg + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func lastSegment(ptr string) string {
	if i := strings.LastIndex(ptr, "/"); i >= 0 {
		return ptr[i+1:]
	}
	return ptr
}
