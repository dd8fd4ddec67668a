// Package diff3 implements a line-based three-way merge.
package diff3

import (
	"bytes"
	"strings"
)

// Style selects how conflicting regions are rendered.
type Style int

const (
	// StyleMerge writes local and other sections between markers.
	StyleMerge Style = iota
	// StyleMerge3 additionally writes the base section.
	StyleMerge3
	// StyleUnion writes local then other without markers.
	StyleUnion
)

// Labels name the three sides in conflict markers.
type Labels struct {
	Local, Base, Other string
}

// DefaultLabels is used for empty label fields.
var DefaultLabels = Labels{Local: "local", Base: "base", Other: "other"}

// Options controls Merge.
type Options struct {
	Style  Style
	Labels Labels
}

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean HunkType = iota
	HunkConflict
)

// Hunk is a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Local, Other, Merged []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	// Merged is the full output, including conflict markers when the style
	// writes them.
	Merged []byte
	// Conflicts counts regions changed differently by both sides.
	Conflicts int
	Hunks     []Hunk
}

// HasConflicts reports whether any region conflicted.
func (r Result) HasConflicts() bool { return r.Conflicts > 0 }

// Merge performs a three-way merge of base, local and other.
func Merge(base, local, other []byte, opts Options) Result {
	labels := opts.Labels
	if labels.Local == "" {
		labels.Local = DefaultLabels.Local
	}
	if labels.Base == "" {
		labels.Base = DefaultLabels.Base
	}
	if labels.Other == "" {
		labels.Other = DefaultLabels.Other
	}

	baseLines := splitLines(base)
	m := merger{
		style:  opts.Style,
		labels: labels,
		base:   baseLines,
		local:  buildChunks(baseLines, splitLines(local)),
		other:  buildChunks(baseLines, splitLines(other)),
	}
	return m.run()
}

// splitLines splits s into lines. A trailing newline does not produce an
// extra empty element.
func splitLines(s []byte) []string {
	if len(s) == 0 {
		return nil
	}
	lines := strings.Split(string(s), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chunk is a contiguous region relative to the base.
type chunk struct {
	baseStart, baseEnd int
	lines              []string
	changed            bool
}

// buildChunks converts the edit script base -> side into chunks, one per
// unchanged line and one per maximal changed run.
func buildChunks(base, side []string) []chunk {
	ops := diffLines(base, side)
	var chunks []chunk
	baseIdx := 0
	for i := 0; i < len(ops); {
		if ops[i].kind == opEqual {
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{ops[i].line},
			})
			baseIdx++
			i++
			continue
		}
		start := baseIdx
		var lines []string
		for ; i < len(ops) && ops[i].kind != opEqual; i++ {
			if ops[i].kind == opDelete {
				baseIdx++
			} else {
				lines = append(lines, ops[i].line)
			}
		}
		chunks = append(chunks, chunk{baseStart: start, baseEnd: baseIdx, lines: lines, changed: true})
	}
	return chunks
}

type merger struct {
	style        Style
	labels       Labels
	base         []string
	local, other []chunk

	out    bytes.Buffer
	result Result
}

// run walks both chunk sequences in base order. Each step gathers the
// smallest base region both sides cover completely, then resolves it.
func (m *merger) run() Result {
	li, oi := 0, 0
	for li < len(m.local) || oi < len(m.other) {
		if li == len(m.local) {
			m.emitOneSide(m.other[oi:])
			break
		}
		if oi == len(m.other) {
			m.emitOneSide(m.local[li:])
			break
		}

		start := min(m.local[li].baseStart, m.other[oi].baseStart)
		end := max(m.local[li].baseEnd, m.other[oi].baseEnd)
		ls, os := li, oi
		li++
		oi++
		for grew := true; grew; {
			grew = false
			for li < len(m.local) && m.local[li].baseStart < end {
				end = max(end, m.local[li].baseEnd)
				li++
				grew = true
			}
			for oi < len(m.other) && m.other[oi].baseStart < end {
				end = max(end, m.other[oi].baseEnd)
				oi++
				grew = true
			}
		}
		m.resolve(m.base[start:end], m.local[ls:li], m.other[os:oi])
	}
	m.result.Merged = m.out.Bytes()
	return m.result
}

func (m *merger) emitOneSide(chunks []chunk) {
	for _, c := range chunks {
		var base []string
		if c.baseStart < c.baseEnd {
			base = m.base[c.baseStart:c.baseEnd]
		}
		m.clean(base, c.lines)
	}
}

func (m *merger) resolve(base []string, local, other []chunk) {
	localLines, localChanged := assemble(local)
	otherLines, otherChanged := assemble(other)
	switch {
	case !localChanged && !otherChanged:
		m.clean(base, base)
	case localChanged && !otherChanged:
		m.clean(base, localLines)
	case !localChanged && otherChanged:
		m.clean(base, otherLines)
	case linesEqual(localLines, otherLines):
		m.clean(base, localLines)
	default:
		m.conflict(base, localLines, otherLines)
	}
}

func (m *merger) clean(base, merged []string) {
	writeLines(&m.out, merged)
	m.result.Hunks = append(m.result.Hunks, Hunk{
		Type:   HunkClean,
		Base:   joinLines(base),
		Merged: joinLines(merged),
	})
}

func (m *merger) conflict(base, local, other []string) {
	m.result.Conflicts++
	start := m.out.Len()
	switch m.style {
	case StyleUnion:
		writeLines(&m.out, local)
		writeLines(&m.out, other)
	default:
		m.out.WriteString("<<<<<<< " + m.labels.Local + "\n")
		writeLines(&m.out, local)
		if m.style == StyleMerge3 {
			m.out.WriteString("||||||| " + m.labels.Base + "\n")
			writeLines(&m.out, base)
		}
		m.out.WriteString("=======\n")
		writeLines(&m.out, other)
		m.out.WriteString(">>>>>>> " + m.labels.Other + "\n")
	}
	m.result.Hunks = append(m.result.Hunks, Hunk{
		Type:   HunkConflict,
		Base:   joinLines(base),
		Local:  joinLines(local),
		Other:  joinLines(other),
		Merged: bytes.Clone(m.out.Bytes()[start:]),
	})
}

func assemble(chunks []chunk) ([]string, bool) {
	var lines []string
	changed := false
	for _, c := range chunks {
		lines = append(lines, c.lines...)
		changed = changed || c.changed
	}
	return lines, changed
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeLines(&buf, lines)
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
