package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// LeechAction is what happens to a card that becomes a leech.
type LeechAction string

const (
	LeechSuspend LeechAction = "suspend"
	LeechTagOnly LeechAction = "tag_only"
)

// NewOrder is how new cards are ordered when a queue is built.
type NewOrder string

const (
	NewOrderDue    NewOrder = "due"
	NewOrderRandom NewOrder = "random"
)

// ReviewOrder breaks ties between review cards due on the same day.
type ReviewOrder string

const (
	ReviewOrderRandom   ReviewOrder = "random"
	ReviewOrderInterval ReviewOrder = "interval"
)

// DeckConfig holds the per-deck scheduling parameters.
type DeckConfig struct {
	ID   ConfigID `json:"id" koanf:"id"`
	Name string   `json:"name" koanf:"name"`

	NewPerDay     int `json:"new_per_day" koanf:"new_per_day" validate:"gte=0"`
	ReviewsPerDay int `json:"reviews_per_day" koanf:"reviews_per_day" validate:"gte=0"`

	LearnSteps         []time.Duration `json:"learn_steps" koanf:"learn_steps" validate:"min=1,dive,gt=0"`
	RelearnSteps       []time.Duration `json:"relearn_steps" koanf:"relearn_steps" validate:"dive,gt=0"`
	GraduatingInterval int             `json:"graduating_interval" koanf:"graduating_interval" validate:"gte=1"`
	EasyInterval       int             `json:"easy_interval" koanf:"easy_interval" validate:"gte=1,gtefield=GraduatingInterval"`

	StartingEase     int     `json:"starting_ease" koanf:"starting_ease" validate:"gte=1300"`
	EasyBonus        float64 `json:"easy_bonus" koanf:"easy_bonus" validate:"gt=0"`
	IntervalModifier float64 `json:"interval_modifier" koanf:"interval_modifier" validate:"gt=0"`
	HardMultiplier   float64 `json:"hard_multiplier" koanf:"hard_multiplier" validate:"gt=0"`
	MaxInterval      int     `json:"max_interval" koanf:"max_interval" validate:"gte=1"`

	LeechThreshold   int         `json:"leech_threshold" koanf:"leech_threshold" validate:"gte=0"`
	LeechAction      LeechAction `json:"leech_action" koanf:"leech_action" validate:"oneof=suspend tag_only"`
	LapseMultiplier  float64     `json:"lapse_multiplier" koanf:"lapse_multiplier" validate:"gte=0,lte=1"`
	MinLapseInterval int         `json:"min_lapse_interval" koanf:"min_lapse_interval" validate:"gte=1"`

	Fuzz        bool        `json:"fuzz" koanf:"fuzz"`
	NewOrder    NewOrder    `json:"new_order" koanf:"new_order" validate:"oneof=due random"`
	ReviewOrder ReviewOrder `json:"review_order" koanf:"review_order" validate:"oneof=random interval"`
	BuryNew     bool        `json:"bury_new" koanf:"bury_new"`
	BuryReviews bool        `json:"bury_reviews" koanf:"bury_reviews"`

	MaxAnswerTime time.Duration `json:"max_answer_time" koanf:"max_answer_time" validate:"gt=0"`
}

// DefaultDeckConfig returns the preset used when a deck has no usable config.
func DefaultDeckConfig() DeckConfig {
	return DeckConfig{
		ID:                 DefaultConfigID,
		Name:               "Default",
		NewPerDay:          20,
		ReviewsPerDay:      200,
		LearnSteps:         []time.Duration{time.Minute, 10 * time.Minute},
		RelearnSteps:       []time.Duration{10 * time.Minute},
		GraduatingInterval: 1,
		EasyInterval:       4,
		StartingEase:       2500,
		EasyBonus:          1.3,
		IntervalModifier:   1.0,
		HardMultiplier:     1.2,
		MaxInterval:        36500,
		LeechThreshold:     8,
		LeechAction:        LeechTagOnly,
		LapseMultiplier:    0,
		MinLapseInterval:   1,
		Fuzz:               true,
		NewOrder:           NewOrderDue,
		ReviewOrder:        ReviewOrderRandom,
		BuryNew:            true,
		BuryReviews:        true,
		MaxAnswerTime:      time.Minute,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config's invariants. The returned error wraps
// ErrInvalidConfig.
func (c DeckConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: config %d (%s): %v", ErrInvalidConfig, c.ID, c.Name, err)
	}
	return nil
}

// Clone returns a copy that does not share step slices.
func (c DeckConfig) Clone() DeckConfig {
	out := c
	out.LearnSteps = append([]time.Duration(nil), c.LearnSteps...)
	out.RelearnSteps = append([]time.Duration(nil), c.RelearnSteps...)
	return out
}
