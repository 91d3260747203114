package domain

// NoteID identifies a note. Several cards may share one note (siblings).
type NoteID int64

// Note represents a single question-answer-context entry.
type Note struct {
	ID       NoteID
	SourceID int64
	Question string
	Answer   string
	Context  string
	// Hash is the content hash used to recognise the note across syncs.
	Hash string
	// Reversible notes produce a second card asking the answer side.
	Reversible bool
}

// CardCount returns how many cards the note generates.
func (n Note) CardCount() int {
	if n.Reversible {
		return 2
	}
	return 1
}

// Prompt returns the question and answer shown for the card with the given ordinal.
func (n Note) Prompt(ordinal int) (front, back string) {
	if ordinal == 1 && n.Reversible {
		return n.Answer, n.Question
	}
	return n.Question, n.Answer
}
