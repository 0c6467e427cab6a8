// Package render substitutes variable placeholders into node templates.
//
// The template grammar is deliberately flat: "{{name}}" substitution only,
// no conditionals or loops. Rendering is a pure function — identical inputs
// always yield byte-identical output.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/loom/internal/model"
)

// Node renders one context node against the resolved variable set.
//
// Unknown placeholders are kept literally in the output and reported in
// MissingVariables (sorted, deduplicated); a referenced-but-absent name
// never aborts rendering.
func Node(node model.Node, values map[string]string) model.Segment {
	body, missing := Interpolate(node.Content, values)

	var messages []model.Message
	if len(missing) > 0 {
		messages = append(messages, model.Message{
			Severity: model.SeverityWarn,
			Code:     model.CodeMissingVariable,
			Message:  fmt.Sprintf("missing variables: %s", strings.Join(missing, ", ")),
		})
	}

	return model.Segment{
		NodeID:           node.ID,
		Label:            node.Label,
		Kind:             node.Kind,
		Template:         node.Content,
		Rendered:         body,
		MissingVariables: missing,
		Messages:         messages,
	}
}

// Interpolate replaces each "{{name}}" placeholder in template with the
// matching value. Placeholder names are trimmed of surrounding whitespace.
// Empty names ("{{}}") and unterminated "{{" are copied through verbatim.
// Returns the rendered text and the sorted, deduplicated missing names.
func Interpolate(template string, values map[string]string) (string, []string) {
	var out strings.Builder
	out.Grow(len(template))

	missingSet := map[string]bool{}

	i := 0
	for i < len(template) {
		if template[i] != '{' || i+1 >= len(template) || template[i+1] != '{' {
			out.WriteByte(template[i])
			i++
			continue
		}

		start := i
		i += 2
		nameStart := i
		for i+1 < len(template) && !(template[i] == '}' && template[i+1] == '}') {
			i++
		}
		if i+1 >= len(template) {
			// Unterminated placeholder: keep the rest as-is.
			out.WriteString(template[start:])
			break
		}

		name := strings.TrimSpace(template[nameStart:i])
		placeholder := template[start : i+2]
		switch {
		case name == "":
			out.WriteString(placeholder)
		default:
			if value, ok := values[name]; ok {
				out.WriteString(value)
			} else {
				missingSet[name] = true
				out.WriteString(placeholder)
			}
		}
		i += 2
	}

	var missing []string
	for name := range missingSet {
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return out.String(), missing
}
