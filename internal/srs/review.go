package srs

import (
	"github.com/conorfennell/knolsched/internal/domain"
)

func (a *answer) answerReview() error {
	c := &a.card
	early := c.Filtered != nil && c.Filtered.OriginalDue.Kind == domain.DueDay && c.Filtered.OriginalDue.Value > a.today()
	if early {
		a.log.Kind = domain.KindCram
	} else {
		a.log.Kind = domain.KindReview
	}
	a.log.LastInterval = domain.Days(c.Interval)

	if a.ease == domain.Again {
		return a.lapse()
	}

	if early {
		c.Interval = a.earlyInterval()
	} else {
		c.Interval = a.nextInterval()
	}
	switch a.ease {
	case domain.Hard:
		c.EaseFactor = max(MinEase, c.EaseFactor-150)
	case domain.Easy:
		c.EaseFactor += 150
	}
	c.Due = domain.DayDue(a.today() + int64(c.Interval))
	a.log.Interval = domain.Days(c.Interval)
	a.leaveFiltered()
	return nil
}

// constrain applies the interval modifier and keeps the result above prev
// and within [1, MaxInterval].
func (a *answer) constrain(ivl float64, prev int) int {
	n := roundHalfUp(ivl * a.conf.IntervalModifier)
	return min(max(n, prev+1, 1), a.conf.MaxInterval)
}

// nextInterval computes the interval of a passed review. The three buttons
// are ordered hard < good < easy before fuzz is applied to the chosen one.
func (a *answer) nextInterval() int {
	ivl := float64(a.card.Interval)
	fct := float64(a.card.EaseFactor) / 1000

	hardMin := 0
	if a.conf.HardMultiplier > 1 {
		hardMin = a.card.Interval
	}
	hard := a.constrain(ivl*a.conf.HardMultiplier, hardMin)
	good := a.constrain(ivl*fct, hard)
	easy := a.constrain(ivl*fct*a.conf.EasyBonus, good)

	chosen, prev := hard, hardMin
	switch a.ease {
	case domain.Good:
		chosen, prev = good, hard
	case domain.Easy:
		chosen, prev = easy, good
	}
	return min(max(a.fuzzed(chosen), prev+1, 1), a.conf.MaxInterval)
}

// earlyInterval is used when a filtered deck shows a review card before its
// due day. The interval grows from the time actually elapsed.
func (a *answer) earlyInterval() int {
	c := a.card
	elapsed := c.Interval - int(c.Filtered.OriginalDue.Value-a.today())

	var (
		factor    float64
		easyBonus = 1.0
		minNewIvl = 1.0
	)
	switch a.ease {
	case domain.Hard:
		factor = a.conf.HardMultiplier
		minNewIvl = factor / 2
	case domain.Good:
		factor = float64(c.EaseFactor) / 1000
	default:
		factor = float64(c.EaseFactor) / 1000
		easyBonus = a.conf.EasyBonus - (a.conf.EasyBonus-1)/2
	}

	ivl := max(float64(elapsed)*factor, 1)
	ivl = max(float64(c.Interval)*minNewIvl, ivl) * easyBonus
	return a.constrain(ivl, 0)
}

// lapseInterval is the interval kept after a lapse. It never exceeds old.
func (a *answer) lapseInterval(old int) int {
	ivl := max(1, a.conf.MinLapseInterval, roundHalfUp(float64(old)*a.conf.LapseMultiplier))
	return min(ivl, max(old, 1))
}

// IsLeech reports whether a card with the given lapse count is a leech:
// at the threshold and every half threshold after it. Lapses in between
// do not flag the card again, so the leech hook fires once per period
// rather than on every lapse past the threshold.
func IsLeech(lapses, threshold int) bool {
	if threshold <= 0 || lapses < threshold {
		return false
	}
	return (lapses-threshold)%max(threshold/2, 1) == 0
}

func (a *answer) lapse() error {
	c := &a.card
	c.Lapses++
	c.EaseFactor = max(MinEase, c.EaseFactor-200)
	a.leech = IsLeech(c.Lapses, a.conf.LeechThreshold)
	suspend := a.leech && a.conf.LeechAction == domain.LeechSuspend

	if len(a.conf.RelearnSteps) > 0 && !suspend {
		c.Type = domain.TypeRelearning
		c.Interval = a.lapseInterval(c.Interval)
		c.Progress = startingProgress(a.conf.RelearnSteps)
		a.reschedule(a.conf.RelearnSteps[0])
		return nil
	}

	c.Interval = a.lapseInterval(c.Interval)
	c.Type = domain.TypeReview
	c.Queue = domain.QueueReview
	c.Due = domain.DayDue(a.today() + int64(c.Interval))
	a.log.Interval = domain.Days(c.Interval)
	a.leaveFiltered()
	if suspend {
		c.Queue = domain.QueueSuspended
	}
	return nil
}
