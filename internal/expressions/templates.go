package expressions

import (
	"regexp"
	"strconv"
	"strings"
)

// Template references point at another node's output:
//
//	{{@<nodeID>:<label>}}
//	{{@<nodeID>:<label>.<field path>}}
//
// The node ID is authoritative; the label is kept in the text for
// readability and is rewritten when the referenced node is renamed.
var referencePattern = regexp.MustCompile(`\{\{@([^:{}]+):([^.{}]*)((?:\.[^{}]*)?)\}\}`)

// Reference is one parsed template reference.
type Reference struct {
	NodeID string
	Label  string
	Field  string // without the leading dot; empty when absent
	Raw    string
}

// FindReferences returns every template reference in s, in order of appearance.
func FindReferences(s string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{
			NodeID: m[1],
			Label:  m[2],
			Field:  strings.TrimPrefix(m[3], "."),
			Raw:    m[0],
		})
	}
	return refs
}

// RewriteLabel replaces the label of every reference to nodeID whose label
// is oldLabel. References to other nodes, or carrying another label, are
// left alone. Reports whether anything changed.
func RewriteLabel(s, nodeID, oldLabel, newLabel string) (string, bool) {
	if !strings.Contains(s, "{{@") {
		return s, false
	}
	pattern := regexp.MustCompile(`\{\{@` + regexp.QuoteMeta(nodeID) + `:` + regexp.QuoteMeta(oldLabel) + `(\.[^{}]*)?\}\}`)
	if !pattern.MatchString(s) {
		return s, false
	}
	prefix := "{{@" + nodeID + ":" + newLabel
	out := pattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		return prefix + sub[1] + "}}"
	})
	return out, out != s
}

// ReplaceReferences substitutes every template reference with the value
// returned by fn, called with each reference in order of appearance.
func ReplaceReferences(s string, fn func(Reference) string) string {
	if !strings.Contains(s, "{{@") {
		return s
	}
	return referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		m := referencePattern.FindStringSubmatch(match)
		return fn(Reference{NodeID: m[1], Label: m[2], Field: strings.TrimPrefix(m[3], "."), Raw: m[0]})
	})
}

// NeutralizeReferences swaps each template reference for a plain identifier
// (ref0, ref1, ...) so expression parsers see valid syntax. The identifiers
// are returned in order; a reference repeated verbatim reuses its identifier.
func NeutralizeReferences(s string) (string, []string) {
	if !strings.Contains(s, "{{@") {
		return s, nil
	}
	seen := make(map[string]string)
	var names []string
	out := referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		if name, ok := seen[match]; ok {
			return name
		}
		name := "ref" + strconv.Itoa(len(names))
		seen[match] = name
		names = append(names, name)
		return name
	})
	return out, names
}
