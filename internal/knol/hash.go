// Package knol identifies notes by their content so a note keeps its
// scheduling history across syncs as long as its text does not change.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

// reversibleMarker is appended for reversible notes, which make a
// different set of cards than the same text asked one way.
const reversibleMarker = "\x00reversible"

func normalizePart(part string) string {
	p := strings.ReplaceAll(part, "\r\n", "\n")
	return strings.TrimSpace(strings.ToLower(p))
}

// Normalize joins the cleaned question, answer and context of a note.
// Case, surrounding whitespace and line endings do not matter.
func Normalize(note domain.Note) string {
	s := strings.Join([]string{
		normalizePart(note.Question),
		normalizePart(note.Answer),
		normalizePart(note.Context),
	}, "\n")
	if note.Reversible {
		s += reversibleMarker
	}
	return s
}

// Hash returns the hex SHA-256 of the normalized note.
func Hash(note domain.Note) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Normalize(note))))
}
