package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for code whose behavior depends on it (stale-order
// sweeps, export windows), so tests can drive it deterministically.
type Clock interface {
	Now() time.Time
}

var Module = fx.Provide(NewSystemClock)

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
