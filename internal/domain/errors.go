package domain

import "errors"

var (
	// ErrUnresolvableTimestamp marks a staging row with no usable start
	// time. The row is skipped and logged, never defaulted to "now".
	ErrUnresolvableTimestamp = errors.New("staging row has no usable start time")

	// ErrAmbiguousReconciliation marks a staging row matching more than
	// one canonical candidate within tolerance. The row stays unlinked
	// for manual resolution.
	ErrAmbiguousReconciliation = errors.New("multiple canonical candidates match within tolerance")

	// ErrDuplicateSourceRecord signals a unique-constraint collision on
	// (source, source_activity_id). Callers convert it into an update of
	// the existing link.
	ErrDuplicateSourceRecord = errors.New("source record already linked to a canonical activity")

	// ErrUnresolvableTimezone signals that no zone could be derived for
	// an activity. Grouping proceeds on the fallback zone, flagged
	// low-confidence.
	ErrUnresolvableTimezone = errors.New("no timezone derivable for activity")

	// ErrActivityNotFound is returned when a canonical activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrUnknownSource rejects a source outside the known set.
	ErrUnknownSource = errors.New("unknown activity source")

	// ErrMissingSourceID rejects a source link without a native key.
	ErrMissingSourceID = errors.New("missing source activity id")

	// ErrCategoryCycle rejects a category parent assignment that would
	// close a loop in the category tree.
	ErrCategoryCycle = errors.New("category parent would create a cycle")
)
