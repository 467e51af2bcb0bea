package logicalday

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// Embedded zone database so resolution does not depend on the host image.
	_ "time/tzdata"

	"go.uber.org/zap"
)

// ErrUnknownTimezone marks a timezone identifier that could not be loaded.
var ErrUnknownTimezone = errors.New("unknown timezone")

// TimezoneFallbackError reports that UTC was used in place of an unusable timezone.
// It is recoverable: the accompanying Date is always valid.
type TimezoneFallbackError struct {
	Timezone string
	Cause    error
}

func (e *TimezoneFallbackError) Error() string {
	return fmt.Sprintf("timezone %q not usable, fell back to UTC: %v", e.Timezone, e.Cause)
}

func (e *TimezoneFallbackError) Unwrap() error { return ErrUnknownTimezone }

// LoadLocation resolves an IANA identifier. An empty identifier means UTC.
// "Local" is rejected because it depends on the host.
func LoadLocation(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if name == "Local" {
		return time.UTC, &TimezoneFallbackError{Timezone: tz, Cause: errors.New("host-local zone is not allowed")}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, &TimezoneFallbackError{Timezone: tz, Cause: err}
	}
	return loc, nil
}

// Resolve maps an instant to the calendar date observed in tz.
// On a bad timezone it still returns the UTC date, together with a *TimezoneFallbackError.
func Resolve(instant time.Time, tz string) (Date, error) {
	loc, err := LoadLocation(tz)
	return FromTime(instant.In(loc)), err
}

// Resolver caches locations and logs fallbacks instead of returning them.
// Batch code uses it so a single bad profile never aborts a run.
type Resolver struct {
	log *zap.Logger
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, now: time.Now, cache: make(map[string]*time.Location)}
}

// WithClock replaces the clock used by Today; tests pin it.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Location returns the cached location for tz, UTC when it cannot be loaded.
// The fallback is logged once per identifier.
func (r *Resolver) Location(tz string) *time.Location {
	r.mu.RLock()
	loc, ok := r.cache[tz]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := LoadLocation(tz)
	if err != nil {
		r.log.Warn("timezone fallback", zap.String("timezone", tz), zap.Error(err))
	}
	r.mu.Lock()
	r.cache[tz] = loc
	r.mu.Unlock()
	return loc
}

func (r *Resolver) Resolve(instant time.Time, tz string) Date {
	return FromTime(instant.In(r.Location(tz)))
}

// Today is the logical day in tz right now.
func (r *Resolver) Today(tz string) Date {
	return r.Resolve(r.now(), tz)
}

func (r *Resolver) Now() time.Time { return r.now() }
