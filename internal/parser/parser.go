// Package parser reads notes from markdown files. A note starts with a "Q:"
// line, or "QR:" for a note studied in both directions, followed by an "A:"
// and an optional "C:" block. A block runs until the next prefix, a "---"
// separator or the next question.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

type field int

const (
	none field = iota
	question
	answer
	context
)

var prefixes = []struct {
	tag        string
	field      field
	reversible bool
}{
	{"QR:", question, true},
	{"Q:", question, false},
	{"A:", answer, false},
	{"C:", context, false},
}

const separator = "---"

// ParseFile reads the notes of one markdown file.
func ParseFile(path string) ([]domain.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// noteReader accumulates lines into notes.
type noteReader struct {
	notes []domain.Note
	note  domain.Note
	field field
	block []string
}

// closeField stores the open block in its field.
func (p *noteReader) closeField() {
	if p.field == none {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.field {
	case question:
		p.note.Question = content
	case answer:
		p.note.Answer = content
	case context:
		p.note.Context = content
	}
	p.block = nil
}

// closeNote keeps the current note if it has a question and starts afresh.
func (p *noteReader) closeNote() {
	p.closeField()
	if p.note.Question != "" {
		p.notes = append(p.notes, p.note)
	}
	p.note = domain.Note{}
	p.field = none
}

func (p *noteReader) line(line string) {
	if strings.TrimSpace(line) == separator {
		p.closeNote()
		return
	}
	for _, pre := range prefixes {
		if !strings.HasPrefix(line, pre.tag) {
			continue
		}
		if pre.field == question && p.field != none {
			p.closeNote()
		} else {
			p.closeField()
		}
		if pre.reversible {
			p.note.Reversible = true
		}
		p.field = pre.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pre.tag):], " "))
		return
	}
	if p.field != none {
		p.block = append(p.block, line)
	}
}

// Parse reads notes from r.
func Parse(r io.Reader) ([]domain.Note, error) {
	var p noteReader
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.closeNote()
	return p.notes, nil
}
