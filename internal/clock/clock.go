package clock

import (
	"time"

	"go.uber.org/fx"
)

// Module provides the wall clock.
var Module = fx.Module("clock",
	fx.Provide(NewRealClock),
)

// Clock abstracts time so eligibility windows and expiry are testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}
