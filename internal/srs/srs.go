// Package srs computes how a card's schedule changes when it is answered.
// Everything here is a pure function of the card, its deck config, the
// answer, the timing snapshot and the random source.
package srs

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
)

// MinEase is the floor of a card's ease factor.
const MinEase = 1300

// Context carries everything besides the card and config that an answer
// depends on.
type Context struct {
	Timing clock.Timing
	Rand   *rand.Rand
	// Filtered holds the options of the filtered deck the card sits in, or
	// nil when the card is in its home deck.
	Filtered  *domain.FilteredDeck
	FuzzBands []FuzzBand
	TimeTaken time.Duration
}

// Result is the outcome of one answer.
type Result struct {
	Card domain.Card
	Log  domain.ReviewLogEntry
	// Leech is set when this lapse crossed the leech threshold.
	Leech bool
	// LeftFiltered is set when the card went back to its home deck.
	LeftFiltered bool
}

// answer is the working state of one Answer call.
type answer struct {
	card  domain.Card
	conf  domain.DeckConfig
	ease  domain.Ease
	ctx   Context
	log   domain.ReviewLogEntry
	leech bool
	left  bool
}

// Answer applies ease to card. The input card is not modified.
func Answer(card domain.Card, conf domain.DeckConfig, ease domain.Ease, ctx Context) (Result, error) {
	if !ease.IsValid() {
		return Result{}, fmt.Errorf("%w: ease %d", domain.ErrInvalidInput, int(ease))
	}
	if err := card.Validate(); err != nil {
		return Result{}, err
	}
	if ctx.Rand == nil {
		return Result{}, fmt.Errorf("%w: no random source", domain.ErrInvalidInput)
	}

	a := &answer{card: card.Clone(), conf: conf, ease: ease, ctx: ctx}
	a.log = domain.NewReviewLogEntry(card.ID, ctx.Timing.Now, domain.KindLearn)
	a.log.Ease = ease
	a.log.TimeTaken = min(max(ctx.TimeTaken, 0), conf.MaxAnswerTime)

	if ctx.Filtered != nil && !ctx.Filtered.Reschedule && card.Filtered != nil {
		if err := a.preview(); err != nil {
			return Result{}, err
		}
		return a.result(), nil
	}

	if a.card.Queue == domain.QueuePreview {
		// The deck started rescheduling after the card was previewed.
		a.card.Queue = previewedQueue(a.card.Type)
	}

	a.card.Reps++
	if a.card.Queue == domain.QueueNew {
		a.card.Queue = domain.QueueLearning
		a.card.Type = domain.TypeLearning
		a.card.Progress = startingProgress(conf.LearnSteps)
	}

	var err error
	switch a.card.Queue {
	case domain.QueueLearning, domain.QueueDayLearning:
		err = a.answerLearning()
	case domain.QueueReview:
		err = a.answerReview()
	case domain.QueuePreview, domain.QueueUserBuried, domain.QueueSchedBuried, domain.QueueSuspended:
		err = fmt.Errorf("%w: card %d is in queue %s", domain.ErrInvalidInput, card.ID, card.Queue)
	default:
		err = fmt.Errorf("%w: card %d has unknown queue %d", domain.ErrInvalidInput, card.ID, int(card.Queue))
	}
	if err != nil {
		return Result{}, err
	}

	// The original due only matters until the card is first answered.
	if a.card.Filtered != nil {
		a.card.Filtered.OriginalDue = domain.Due{}
	}
	a.log.EaseFactor = a.card.EaseFactor
	return a.result(), nil
}

func previewedQueue(t domain.CardType) domain.Queue {
	switch t {
	case domain.TypeNew:
		return domain.QueueNew
	case domain.TypeReview:
		return domain.QueueReview
	default:
		return domain.QueueLearning
	}
}

func (a *answer) result() Result {
	return Result{Card: a.card, Log: a.log, Leech: a.leech, LeftFiltered: a.left}
}

func (a *answer) today() int64 {
	return a.ctx.Timing.Today
}

// leaveFiltered returns the card to its home deck.
func (a *answer) leaveFiltered() {
	if a.card.Filtered == nil {
		return
	}
	a.card.DeckID = a.card.Filtered.OriginalDeck
	a.card.Filtered = nil
	a.left = true
}

// fuzzed returns ivl drawn from its fuzz window when the config enables fuzz.
func (a *answer) fuzzed(ivl int) int {
	if !a.conf.Fuzz {
		return ivl
	}
	return Fuzz(ivl, a.ctx.FuzzBands, a.ctx.Rand)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
