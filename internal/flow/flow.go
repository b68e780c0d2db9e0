package flow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// InputType is the declared type of a flow input.
type InputType int

const (
	TypeString InputType = iota
	TypeBoolean
	TypeNumber
	TypeFloat
)

func (t InputType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeFloat:
		return "float"
	default:
		return "string"
	}
}

// ParseInputType maps a wire type name onto the tagged variant. Catalogs are
// caller-supplied per request, so an unknown name falls back to string
// rather than rejecting the whole request.
func ParseInputType(s string) InputType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boolean", "bool":
		return TypeBoolean
	case "number", "int", "integer":
		return TypeNumber
	case "float", "double":
		return TypeFloat
	default:
		return TypeString
	}
}

func (t InputType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *InputType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("input type must be a string: %w", err)
	}
	*t = ParseInputType(s)
	return nil
}

// InputSpec declares one input of a flow.
type InputSpec struct {
	Type     InputType `json:"type"`
	Required bool      `json:"required"`
}

// Flow is a named multi-step operation a user can trigger by query, together
// with its typed input schema. Flows arrive with each request; nothing here
// is persisted.
type Flow struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Inputs      map[string]InputSpec `json:"inputs"`
}

// Find looks a flow up by exact name.
func Find(flows []Flow, name string) (Flow, bool) {
	for _, f := range flows {
		if f.Name == name {
			return f, true
		}
	}
	return Flow{}, false
}

// MissingRequired returns the names of required inputs absent from the
// extracted input map, in sorted order so the corrections message is
// deterministic.
func (f Flow) MissingRequired(inputs map[string]interface{}) []string {
	var missing []string
	for name, spec := range f.Inputs {
		if !spec.Required {
			continue
		}
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// FormatCatalog renders the catalog in the numbered layout the classification
// collaborator was prompted with. Input names are sorted for a stable render.
func FormatCatalog(flows []Flow) string {
	var b strings.Builder
	for i, f := range flows {
		fmt.Fprintf(&b, "%d. name: %s\n", i+1, f.Name)
		fmt.Fprintf(&b, "   description: %s\n", f.Description)
		b.WriteString("   inputs:\n")

		names := make([]string, 0, len(f.Inputs))
		for name := range f.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			spec := f.Inputs[name]
			requirement := "optional"
			if spec.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "       - %s: %s, %s\n", name, spec.Type, requirement)
		}
		b.WriteString("\n")
	}
	return b.String()
}
