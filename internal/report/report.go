// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/wI2L/jsondiff"
)

// Generate describes the difference between the old and new content of
// one file as commit-message lines. It is purely an audit trail for the
// humans reading the repository history, so it never fails: content of
// an unrecognized or mismatched shape degrades to a generic line.
func Generate(oldContent, newContent []byte, filePath string) []string {
	base := path.Base(filePath)

	oldVal := decode(oldContent)
	newVal := decode(newContent)

	if oldList, ok := oldVal.([]any); ok {
		if newList, ok := newVal.([]any); ok {
			return compareLists(base, oldList, newList)
		}
	}

	if oldDoc, ok := asDocument(oldVal); ok {
		if newDoc, ok := asDocument(newVal); ok {
			return compareDocuments(base, oldDoc, newDoc)
		}
	}

	return []string{fmt.Sprintf("- %s: Updated", base)}
}

func decode(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// document is the {title, sections} shape of the info pages.
type document struct {
	title    string
	sections []any
}

func asDocument(v any) (document, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return document{}, false
	}
	title, ok := m["title"].(string)
	if !ok {
		return document{}, false
	}
	sections, ok := m["sections"].([]any)
	if !ok {
		return document{}, false
	}
	return document{title: title, sections: sections}, true
}

// compareLists reports a pure count delta. Entries are matched by index
// only; when lengths differ nothing tries to work out which entries
// moved, the report just says how many appeared or disappeared.
func compareLists(base string, oldList, newList []any) []string {
	if len(oldList) != len(newList) {
		lines := []string{fmt.Sprintf("- %s: %d → %d entries", base, len(oldList), len(newList))}
		if added := len(newList) - len(oldList); added > 0 {
			lines = append(lines, fmt.Sprintf("  Added %d new %s", added, pluralize(added, "entry", "entries")))
		} else {
			removed := -added
			lines = append(lines, fmt.Sprintf("  Removed %d %s", removed, pluralize(removed, "entry", "entries")))
		}
		return lines
	}

	modified := countDiffering(oldList, newList)
	if modified == 0 {
		return []string{fmt.Sprintf("- %s: No changes detected", base)}
	}
	return []string{fmt.Sprintf("- %s: Modified %d %s", base, modified, pluralize(modified, "entry", "entries"))}
}

func compareDocuments(base string, oldDoc, newDoc document) []string {
	var findings []string

	if oldDoc.title != newDoc.title {
		findings = append(findings, "Title changed")
	}

	if len(oldDoc.sections) != len(newDoc.sections) {
		findings = append(findings, fmt.Sprintf("%d → %d sections", len(oldDoc.sections), len(newDoc.sections)))
	} else if changed := countDiffering(oldDoc.sections, newDoc.sections); changed > 0 {
		findings = append(findings, fmt.Sprintf("%d %s changed", changed, pluralize(changed, "section", "sections")))
	}

	if len(findings) == 0 {
		return []string{fmt.Sprintf("- %s: No changes detected", base)}
	}
	return []string{fmt.Sprintf("- %s: %s", base, strings.Join(findings, ", "))}
}

// countDiffering counts indices whose elements are structurally
// unequal. A comparison failure counts as a difference rather than
// silently shrinking the report.
func countDiffering(oldList, newList []any) int {
	count := 0
	for i := range oldList {
		patch, err := jsondiff.Compare(oldList[i], newList[i])
		if err != nil || len(patch) > 0 {
			count++
		}
	}
	return count
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
