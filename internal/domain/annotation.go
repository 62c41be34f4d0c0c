package domain

import "strings"

// TrainingFlag is the tri-state "counts as training" marker on an annotation.
type TrainingFlag int

const (
	TrainingNo      TrainingFlag = 0
	TrainingYes     TrainingFlag = 1
	TrainingUnknown TrainingFlag = 2
)

// Valid reports whether the flag holds one of the three allowed states.
func (f TrainingFlag) Valid() bool {
	return f == TrainingNo || f == TrainingYes || f == TrainingUnknown
}

// Annotation carries user-entered training metadata for one source-native
// activity id (typically Strava's). CanonicalActivityID is a best-effort
// back-link filled in by the repair pass; nil is the expected transient
// state until import catches up, not an error.
type Annotation struct {
	SourceActivityID    string
	WorkoutTypeID       *int64
	CategoryID          *int64
	CanonicalActivityID *int64
	Notes               string
	Tags                []string
	Training            TrainingFlag
}

// tagSeparator is the on-disk delimiter for the tag list.
const tagSeparator = ","

// JoinTags serialises a tag list for storage, dropping empties.
func JoinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			clean = append(clean, tag)
		}
	}
	return strings.Join(clean, tagSeparator)
}

// SplitTags parses a stored tag string back into a list.
func SplitTags(stored string) []string {
	if strings.TrimSpace(stored) == "" {
		return nil
	}
	parts := strings.Split(stored, tagSeparator)
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// WorkoutType is a controlled-vocabulary label for annotations.
type WorkoutType struct {
	ID          int64
	Name        string
	Description string
}

// Category is a node in the self-referencing category tree. Depth is
// unbounded; cycles are rejected on write.
type Category struct {
	ID       int64
	ParentID *int64
	Name     string
}

// ValidateCategoryParent walks the ancestor chain of parentID within the
// provided set and returns ErrCategoryCycle if id appears on it. A nil
// parent is always valid.
func ValidateCategoryParent(id int64, parentID *int64, all []Category) error {
	if parentID == nil {
		return nil
	}
	byID := make(map[int64]Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	seen := make(map[int64]struct{})
	current := *parentID
	for {
		if current == id {
			return ErrCategoryCycle
		}
		if _, dup := seen[current]; dup {
			// Pre-existing loop in the stored tree; refuse to extend it.
			return ErrCategoryCycle
		}
		seen[current] = struct{}{}
		node, ok := byID[current]
		if !ok || node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
}
