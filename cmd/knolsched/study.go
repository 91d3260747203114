package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/scheduler"
)

type noteReader interface {
	NoteByID(ctx context.Context, id domain.NoteID) (domain.Note, error)
}

// study runs a terminal session until the queues are empty or the user
// quits with q.
func study(ctx context.Context, sched *scheduler.Scheduler, notes noteReader, clk clock.Clock, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)
	read := func() (string, bool) {
		if !lines.Scan() {
			return "", false
		}
		line := strings.TrimSpace(lines.Text())
		return line, !strings.EqualFold(line, "q")
	}

	for {
		counts, err := sched.Counts(ctx)
		if err != nil {
			return err
		}
		card, err := sched.NextCard(ctx)
		if err != nil {
			return err
		}
		if card == nil {
			fmt.Fprintln(out, "Congratulations! You have finished for now.")
			return lines.Err()
		}
		note, err := notes.NoteByID(ctx, card.NoteID)
		if err != nil {
			return err
		}
		front, back := note.Prompt(card.Ordinal)

		fmt.Fprintf(out, "\n[%d new, %d learning, %d review]\n", counts.New, counts.Learning, counts.Review)
		fmt.Fprintf(out, "Q: %s\n", front)
		fmt.Fprint(out, "Press Enter to show the answer, q to quit: ")
		start := clk.Now()
		if _, ok := read(); !ok {
			return lines.Err()
		}
		fmt.Fprintf(out, "A: %s\n", back)
		if note.Context != "" {
			fmt.Fprintf(out, "C: %s\n", note.Context)
		}

		for {
			fmt.Fprint(out, "Again (1), Hard (2), Good (3), Easy (4): ")
			line, ok := read()
			if !ok {
				return lines.Err()
			}
			n, err := strconv.Atoi(line)
			ease := domain.Ease(n)
			if err != nil || !ease.IsValid() {
				fmt.Fprintln(out, "Please answer 1, 2, 3 or 4.")
				continue
			}
			err = sched.Answer(ctx, card.ID, ease, clk.Now().Sub(start))
			if errors.Is(err, domain.ErrStaleCard) {
				fmt.Fprintln(out, "The card changed elsewhere, skipping it.")
				break
			}
			if err != nil {
				return err
			}
			break
		}
	}
}
