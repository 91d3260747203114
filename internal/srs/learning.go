package srs

import (
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// maxLearnJitter caps the random delay added to intraday learning steps.
const maxLearnJitter = 5 * time.Minute

func startingProgress(steps []time.Duration) domain.LearningProgress {
	return domain.LearningProgress{Remaining: len(steps), Total: len(steps)}
}

// steps returns the step list that drives the card's current type.
func (a *answer) steps() []time.Duration {
	if a.card.Type == domain.TypeRelearning {
		return a.conf.RelearnSteps
	}
	return a.conf.LearnSteps
}

// stepDelay returns the delay of the step reached with remaining steps left.
func stepDelay(steps []time.Duration, remaining int) (time.Duration, error) {
	if len(steps) == 0 {
		return 0, fmt.Errorf("%w: no learning steps configured", domain.ErrInvalidConfig)
	}
	idx := len(steps) - remaining
	if idx < 0 || idx >= len(steps) {
		idx = 0
	}
	return steps[idx], nil
}

func (a *answer) answerLearning() error {
	steps := a.steps()
	// Clamp progress to the configured steps; the config may have shrunk
	// since the card entered learning.
	p := &a.card.Progress
	p.Total = min(p.Total, len(steps))
	p.Remaining = min(p.Remaining, p.Total)

	if a.card.Type == domain.TypeRelearning {
		a.log.Kind = domain.KindRelearn
	} else {
		a.log.Kind = domain.KindLearn
	}
	if last, err := stepDelay(steps, p.Remaining); err == nil {
		a.log.LastInterval = last
	}

	switch a.ease {
	case domain.Easy:
		a.graduate(true)
		return nil
	case domain.Good:
		if p.Remaining-1 <= 0 {
			a.graduate(false)
			return nil
		}
		p.Remaining--
		delay, err := stepDelay(steps, p.Remaining)
		if err != nil {
			return err
		}
		a.reschedule(delay)
	case domain.Hard:
		delay, err := stepDelay(steps, p.Remaining)
		if err != nil {
			return err
		}
		a.reschedule(delay * 3 / 2)
	case domain.Again:
		*p = startingProgress(steps)
		delay, err := stepDelay(steps, p.Remaining)
		if err != nil {
			return err
		}
		if a.card.Type == domain.TypeRelearning {
			a.card.Interval = a.lapseInterval(a.card.Interval)
		}
		a.reschedule(delay)
	}
	return nil
}

// reschedule puts the card delay from now. Steps ending before the next day
// cutoff stay in the intraday learning queue; longer ones move to the day
// learning queue.
func (a *answer) reschedule(delay time.Duration) {
	t := a.ctx.Timing
	due := t.Now.Add(delay)
	a.log.Interval = delay

	if due.Before(t.NextCutoff) {
		if a.conf.Fuzz {
			extra := min(maxLearnJitter, delay/4) / time.Second
			if extra > 0 {
				due = due.Add(time.Duration(a.ctx.Rand.Int64N(int64(extra))) * time.Second)
			}
			if last := t.NextCutoff.Add(-time.Second); due.After(last) {
				due = last
			}
		}
		a.card.Queue = domain.QueueLearning
		a.card.Due = domain.TimeDue(due)
		return
	}
	a.card.Queue = domain.QueueDayLearning
	a.card.Due = domain.DayDue(t.Today + t.DaysUntil(due))
}

// graduate moves a (re)learning card to the review queue. early is set when
// Easy skipped the remaining steps.
func (a *answer) graduate(early bool) {
	c := &a.card
	if c.Type == domain.TypeRelearning || c.Type == domain.TypeReview {
		ivl := max(c.Interval, 1)
		if early {
			ivl++
		}
		c.Interval = min(ivl, max(a.conf.MaxInterval, 1))
	} else {
		ivl := a.conf.GraduatingInterval
		if early {
			ivl = a.conf.EasyInterval
		}
		c.Interval = min(max(a.fuzzed(ivl), 1), a.conf.MaxInterval)
		c.EaseFactor = a.conf.StartingEase
	}
	c.Type = domain.TypeReview
	c.Queue = domain.QueueReview
	c.Due = domain.DayDue(a.today() + int64(c.Interval))
	c.Progress.Remaining = 0
	a.log.Interval = domain.Days(c.Interval)
	a.leaveFiltered()
}
