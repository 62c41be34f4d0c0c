// Package repair runs the background consistency pass that back-links
// annotation rows to canonical activities once their source link exists.
package repair

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btmullin/supertl2/internal/domain"
	"github.com/btmullin/supertl2/internal/observability"
)

// Repairer periodically fills missing annotation back-links. Rows whose
// source id has no activity_source yet are an expected transient state
// and are simply left for a later pass.
type Repairer struct {
	annotations      domain.AnnotationRepository
	pollInterval     time.Duration
	log              *logrus.Entry
	shutdownComplete chan struct{}
}

// NewRepairer constructs a Repairer. A non-positive poll interval gets a
// working default; callers that only use RunOnce never tick.
func NewRepairer(annotations domain.AnnotationRepository, pollInterval time.Duration, log *logrus.Logger) *Repairer {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Repairer{
		annotations:      annotations,
		pollInterval:     pollInterval,
		log:              log.WithField("component", "repair"),
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (r *Repairer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer func() {
		ticker.Stop()
		close(r.shutdownComplete)
	}()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.WithError(err).Warn("repair pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the loop has stopped.
func (r *Repairer) Wait() {
	<-r.shutdownComplete
}

// RunOnce executes a single repair pass and returns how many links it set.
// Running repeatedly converges to a fixed point: once every resolvable
// link is set, passes write nothing.
func (r *Repairer) RunOnce(ctx context.Context) (int64, error) {
	linked, err := r.annotations.RepairLinks(ctx)
	if err != nil {
		return 0, err
	}
	observability.RecordRepairRun(linked, time.Now())
	if linked > 0 {
		r.log.WithField("linked", linked).Info("annotation back-links repaired")
	}
	return linked, nil
}
