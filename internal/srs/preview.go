package srs

import (
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// DefaultPreviewDelay is used when a preview deck has no delay configured.
const DefaultPreviewDelay = 10 * time.Minute

// preview answers a card in a filtered deck that does not reschedule.
// Again and Hard show the card again after the deck's preview delay; Good
// and Easy put the card back exactly as it was.
func (a *answer) preview() error {
	c := &a.card
	a.log.Kind = domain.KindCram
	a.log.EaseFactor = c.EaseFactor

	switch a.ease {
	case domain.Again, domain.Hard:
		delay := a.ctx.Filtered.PreviewDelay
		if delay <= 0 {
			delay = DefaultPreviewDelay
		}
		c.Queue = domain.QueuePreview
		c.Due = domain.TimeDue(a.ctx.Timing.Now.Add(delay))
		a.log.Interval = delay
	case domain.Good, domain.Easy:
		if !c.Filtered.OriginalDue.IsZero() {
			c.Due = c.Filtered.OriginalDue
		}
		c.Queue = c.RestoredQueue()
		a.leaveFiltered()
	}
	return nil
}
