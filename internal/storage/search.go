package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/store"
)

var propColumns = map[string]string{
	"ivl":    "c.ivl",
	"lapses": "c.lapses",
	"reps":   "c.reps",
	"ease":   "(c.factor / 1000.0)",
}

// clauseSQL renders one filter clause as a WHERE fragment.
func clauseSQL(c domain.Clause, q store.SearchQuery) (string, []any, error) {
	var (
		frag string
		args []any
	)
	switch c.Kind {
	case domain.ClauseDeck:
		if c.Wildcard {
			frag = `d.name LIKE ? ESCAPE '\'`
			args = append(args, escapeLike(c.Deck)+"%")
		} else {
			frag = `(d.name = ? OR d.name LIKE ? ESCAPE '\')`
			args = append(args, c.Deck, escapeLike(c.Deck+domain.DeckSeparator)+"%")
		}
	case domain.ClauseIs:
		switch c.State {
		case "new":
			frag = `c.type = ?`
			args = append(args, domain.TypeNew)
		case "learn":
			frag = `c.queue IN (?, ?)`
			args = append(args, domain.QueueLearning, domain.QueueDayLearning)
		case "review":
			frag = `c.type IN (?, ?)`
			args = append(args, domain.TypeReview, domain.TypeRelearning)
		case "due":
			frag = `((c.queue IN (?, ?) AND c.due <= ?) OR (c.queue = ? AND c.due <= ?))`
			args = append(args, domain.QueueReview, domain.QueueDayLearning, q.Today, domain.QueueLearning, q.Now.Unix())
		default:
			return "", nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidInput, c.State)
		}
	case domain.ClauseProp:
		col, ok := propColumns[c.Prop]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown property %q", domain.ErrInvalidInput, c.Prop)
		}
		switch c.Op {
		case "<", "<=", "=", ">=", ">", "!=":
		default:
			return "", nil, fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidInput, c.Op)
		}
		frag = col + " " + c.Op + " ?"
		args = append(args, c.Value)
	default:
		return "", nil, fmt.Errorf("%w: unknown clause kind %d", domain.ErrInvalidInput, c.Kind)
	}
	if c.Negate {
		frag = "NOT " + frag
	}
	return frag, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// orderSQL returns the ORDER BY clause for a filtered deck order.
func orderSQL(o domain.FilterOrder, today int64) (string, []any) {
	switch o {
	case domain.OrderOldestSeen:
		return `(SELECT MAX(r.reviewed_at) FROM revlog r WHERE r.card_id = c.id), c.id`, nil
	case domain.OrderIntervalAsc:
		return `c.ivl, c.id`, nil
	case domain.OrderIntervalDesc:
		return `c.ivl DESC, c.id`, nil
	case domain.OrderMostLapses:
		return `c.lapses DESC, c.id`, nil
	case domain.OrderAdded:
		return `c.note_id, c.ord, c.id`, nil
	case domain.OrderAddedDesc:
		return `c.note_id DESC, c.ord, c.id`, nil
	case domain.OrderDue:
		return `c.type, c.due, c.id`, nil
	case domain.OrderDuePriority:
		// Overdue reviews first, weighted by how overdue they are relative
		// to their interval.
		return `(CASE WHEN c.queue = ? AND c.due <= ? THEN c.ivl / CAST(? - c.due + 0.001 AS REAL) ELSE 100000 + c.due END), c.id`,
			[]any{domain.QueueReview, today, today}
	default:
		// Random order is applied by the caller.
		return `c.id`, nil
	}
}

// Search returns home-deck cards matching the filter that are neither
// suspended, buried nor already in a filtered deck.
func (r cardRepo) Search(ctx context.Context, q store.SearchQuery) ([]domain.Card, error) {
	conds := []string{`c.queue >= ?`, `c.original_deck_id = 0`, `d.filtered IS NULL`}
	args := []any{domain.QueueNew}
	for _, clause := range q.Filter.Clauses {
		frag, clauseArgs, err := clauseSQL(clause, q)
		if err != nil {
			return nil, err
		}
		conds = append(conds, frag)
		args = append(args, clauseArgs...)
	}
	order, orderArgs := orderSQL(q.Order, q.Today)
	args = append(args, orderArgs...)
	args = append(args, limitValue(q.Limit))

	query := `SELECT ` + cardColumns + ` FROM cards c JOIN decks d ON d.id = c.deck_id WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY ` + order + ` LIMIT ?`
	op := "search cards"
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	return collectCards(rows, op)
}
