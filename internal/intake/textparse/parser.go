// Package textparse splits free-form sales-note text into ordered
// label/value lines. It makes no judgement about field meaning; that is the
// normalizer's job.
package textparse

import (
	"strings"

	"crm-intake-workers/internal/intake/note"
)

// Delimiters tried in priority order on each line. Full-width variants come
// first: the notes are mostly typed with a CJK input method.
var delimiters = []string{"：", ":", "＝", "="}

// Parser splits note text into RawLines. It carries the label vocabulary only
// to recognize label-only lines written without a delimiter.
type Parser struct {
	knownLabels map[string]struct{}
}

func New(labels []string) *Parser {
	known := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		known[NormalizeLabel(l)] = struct{}{}
	}
	return &Parser{knownLabels: known}
}

// NormalizeLabel canonicalizes a label for lookup: full-width brackets and
// spaces become ASCII and surrounding space is dropped.
func NormalizeLabel(label string) string {
	clean := strings.NewReplacer("（", "(", "）", ")", "　", " ").Replace(label)
	return strings.TrimSpace(clean)
}

// Parse splits text into ordered RawLines. Parsing never fails: lines that
// cannot be interpreted are dropped with a warning, blank lines silently.
func (p *Parser) Parse(text string) ([]note.RawLine, []note.Warning) {
	var (
		out      []note.RawLine
		warnings []note.Warning
	)

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		label, value, found := splitLabelValue(line)
		switch {
		case found && value != "":
			out = append(out, note.RawLine{Label: label, Value: value, LineIndex: i})

		case found || p.isKnownLabel(line):
			// Label-only line: the value may sit on one of the next lines.
			if !found {
				label = NormalizeLabel(line)
			}
			consumed, raw := p.lookahead(lines, i, label)
			if consumed > 0 {
				out = append(out, raw)
				i += consumed
			} else {
				warnings = append(warnings, note.NewWarning(note.StageParse, label, "label has no value"))
			}

		default:
			warnings = append(warnings, note.NewWarning(note.StageParse, "", "line has no label delimiter: "+line))
		}
	}

	return out, warnings
}

// lookahead scans at most two lines past a bare label for its value. A line
// that itself reads as label/value (or is another bare label) is never
// consumed.
func (p *Parser) lookahead(lines []string, labelIdx int, label string) (int, note.RawLine) {
	for j := labelIdx + 1; j <= labelIdx+2 && j < len(lines); j++ {
		candidate := strings.TrimSpace(lines[j])
		if candidate == "" {
			continue
		}
		if _, _, isPair := splitLabelValue(candidate); isPair || p.isKnownLabel(candidate) {
			return 0, note.RawLine{}
		}
		return j - labelIdx, note.RawLine{Label: label, Value: candidate, LineIndex: labelIdx}
	}
	return 0, note.RawLine{}
}

func (p *Parser) isKnownLabel(line string) bool {
	_, ok := p.knownLabels[NormalizeLabel(line)]
	return ok
}

// splitLabelValue splits a line on the first delimiter that appears in it.
// found is false when no delimiter matches or the label side is empty.
func splitLabelValue(line string) (label, value string, found bool) {
	for _, delim := range delimiters {
		idx := strings.Index(line, delim)
		if idx < 0 {
			continue
		}
		label = NormalizeLabel(line[:idx])
		if label == "" {
			return "", "", false
		}
		value = strings.TrimSpace(line[idx+len(delim):])
		return label, value, true
	}
	return "", "", false
}
