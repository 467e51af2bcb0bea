package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/cppla/habitcore/logicalday"
)

// Persisted rule kinds.
const (
	KindDaily  = "daily"
	KindWeekly = "weekly"
)

var ErrUnknownRuleKind = errors.New("unknown recurrence kind")

// Rule is a closed set of recurrence variants. New variants are added here and
// to IsDue; callers only ever ask IsDue and never inspect the variant.
type Rule interface {
	Kind() string
	isRule()
}

// Daily is due every day.
type Daily struct{}

// Weekly is due once a week. Anchor overrides the weekday derived from the
// task creation date when set.
type Weekly struct {
	Anchor *time.Weekday
}

func (Daily) Kind() string  { return KindDaily }
func (Weekly) Kind() string { return KindWeekly }
func (Daily) isRule()       {}
func (Weekly) isRule()      {}

// IsDue reports whether rule produces an occurrence on candidate.
// created is the task creation date in the owner's timezone; nil when unknown.
func IsDue(rule Rule, candidate logicalday.Date, created *logicalday.Date) bool {
	switch r := rule.(type) {
	case Daily:
		return true
	case Weekly:
		anchor, ok := r.anchor(created)
		return ok && candidate.Weekday() == anchor
	default:
		return false
	}
}

func (w Weekly) anchor(created *logicalday.Date) (time.Weekday, bool) {
	if w.Anchor != nil {
		return *w.Anchor, true
	}
	if created == nil || created.IsZero() {
		return 0, false
	}
	return created.Weekday(), true
}

// FromKind builds a Rule from its stored representation.
func FromKind(kind string, anchorWeekday *int) (Rule, error) {
	switch kind {
	case KindDaily:
		return Daily{}, nil
	case KindWeekly:
		w := Weekly{}
		if anchorWeekday != nil {
			if *anchorWeekday < 0 || *anchorWeekday > 6 {
				return nil, fmt.Errorf("weekly anchor %d out of range", *anchorWeekday)
			}
			wd := time.Weekday(*anchorWeekday)
			w.Anchor = &wd
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleKind, kind)
	}
}
