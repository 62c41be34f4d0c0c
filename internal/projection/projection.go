// Package projection computes the per-field "best value" view of a
// canonical activity across its linked sources. The projection is a pure
// read-side derivation: it is recomputed on demand and never persisted
// back into the canonical store.
package projection

import (
	"time"

	"github.com/btmullin/supertl2/internal/domain"
)

// DefaultPriority is the source order consulted before falling back to the
// canonical row itself: Strava first, then SportTracks.
var DefaultPriority = []domain.Source{domain.SourceStrava, domain.SourceSportTracks}

// Display is the merged record handed to list/detail views.
type Display struct {
	ActivityID     int64
	StartTimeUTC   time.Time
	DistanceM      *float64
	ElapsedTimeS   *int
	Sport          string
	Name           string
	HasStrava      bool
	HasSportTracks bool
}

// Project picks, for each displayable field, the first non-null value in
// priority order across the linked sources, falling back to the canonical
// activity's own stored value. An empty priority list means canonical-only.
func Project(activity domain.Activity, sources []domain.ActivitySource, priority []domain.Source) Display {
	bySource := make(map[domain.Source]domain.ActivitySource, len(sources))
	for _, src := range sources {
		// Zero-or-one link per source in practice; first wins otherwise.
		if _, seen := bySource[src.Source]; !seen {
			bySource[src.Source] = src
		}
	}

	out := Display{
		ActivityID:   activity.ID,
		StartTimeUTC: activity.StartTimeUTC,
		DistanceM:    activity.DistanceM,
		ElapsedTimeS: activity.ElapsedTimeS,
		Sport:        activity.Sport,
		Name:         activity.Name,
	}
	for _, src := range sources {
		switch src.Source {
		case domain.SourceStrava:
			out.HasStrava = true
		case domain.SourceSportTracks:
			out.HasSportTracks = true
		}
	}

	startSet, distanceSet, elapsedSet, sportSet := false, false, false, false
	for _, want := range priority {
		src, ok := bySource[want]
		if !ok {
			continue
		}
		if !startSet && src.StartTimeUTC != nil {
			out.StartTimeUTC = *src.StartTimeUTC
			startSet = true
		}
		if !distanceSet && src.DistanceM != nil {
			out.DistanceM = src.DistanceM
			distanceSet = true
		}
		if !elapsedSet && src.ElapsedTimeS != nil {
			out.ElapsedTimeS = src.ElapsedTimeS
			elapsedSet = true
		}
		if !sportSet && src.Sport != "" {
			out.Sport = src.Sport
			sportSet = true
		}
	}
	return out
}
