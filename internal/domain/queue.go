package domain

import "fmt"

// Queue is the queue a card currently sits in. A card is in exactly one
// queue at a time. The numeric values are persisted.
type Queue int

const (
	QueueUserBuried  Queue = -3 // Buried by hand until the next day.
	QueueSchedBuried Queue = -2 // Buried because a sibling was answered.
	QueueSuspended   Queue = -1 // Excluded until unsuspended.
	QueueNew         Queue = 0  // Never answered; due is a position.
	QueueLearning    Queue = 1  // Intraday (re)learning; due is a timestamp.
	QueueReview      Queue = 2  // Graduated; due is a day index.
	QueueDayLearning Queue = 3  // (Re)learning step longer than the rest of the day.
	QueuePreview     Queue = 4  // Repeating in a filtered deck that does not reschedule.
)

var queueNames = map[Queue]string{
	QueueUserBuried:  "UserBuried",
	QueueSchedBuried: "SchedBuried",
	QueueSuspended:   "Suspended",
	QueueNew:         "New",
	QueueLearning:    "Learning",
	QueueReview:      "Review",
	QueueDayLearning: "DayLearning",
	QueuePreview:     "Preview",
}

func (q Queue) String() string {
	if name, ok := queueNames[q]; ok {
		return name
	}
	return fmt.Sprintf("Queue(%d)", int(q))
}

// IsValid reports whether q is a known queue.
func (q Queue) IsValid() bool {
	_, ok := queueNames[q]
	return ok
}

// Buried reports whether q is one of the buried queues.
func (q Queue) Buried() bool {
	return q == QueueUserBuried || q == QueueSchedBuried
}

// Active reports whether cards in q can be studied.
func (q Queue) Active() bool {
	return q >= QueueNew
}

// CardType is coarser than Queue and survives suspension and burying.
type CardType int

const (
	TypeNew        CardType = iota // Never answered.
	TypeLearning                   // Working through learning steps.
	TypeReview                     // Graduated.
	TypeRelearning                 // Lapsed, working through relearning steps.
)

var typeNames = [...]string{
	TypeNew:        "New",
	TypeLearning:   "Learning",
	TypeReview:     "Review",
	TypeRelearning: "Relearning",
}

func (t CardType) String() string {
	if t.IsValid() {
		return typeNames[t]
	}
	return fmt.Sprintf("CardType(%d)", int(t))
}

// IsValid reports whether t is a known card type.
func (t CardType) IsValid() bool {
	return t >= TypeNew && t <= TypeRelearning
}

// Learning reports whether the type walks through steps.
func (t CardType) Learning() bool {
	return t == TypeLearning || t == TypeRelearning
}
