package admission

import (
	"time"

	"github.com/roach88/msggate/internal/wire"
)

// Observer receives outcome notifications for metrics. Code is empty on
// success. Implementations must be safe for concurrent use.
type Observer interface {
	AdmissionAttempt(chain wire.ChainID, stage Stage, code Code, elapsed time.Duration)
	CounterInitialization(chain wire.ChainID, code Code, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) AdmissionAttempt(wire.ChainID, Stage, Code, time.Duration) {}
func (nopObserver) CounterInitialization(wire.ChainID, Code, time.Duration)   {}
