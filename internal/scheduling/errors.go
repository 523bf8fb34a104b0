package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExclusionViolation is the translated storage signal that a write
	// lost a race against an overlapping booking for the same resource.
	ErrExclusionViolation = errors.New("scheduling: range exclusion violation")

	// ErrDuplicateIdempotencyKey is the translated storage signal that the
	// idempotency key already exists; the caller is replaying a create.
	ErrDuplicateIdempotencyKey = errors.New("scheduling: duplicate idempotency key")
)

// NotFoundError indicates a referenced tenant-scoped entity does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// ValidationError is a booking rule rejection. The caller must change input;
// it is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConflictError carries every resource found in conflict plus a generated
// summary sentence.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return e.Message()
}

// Message builds the human-readable summary, deduplicated by display name:
// `Doctor "Ada" and Room "Laser 1" are unavailable at the requested time`.
func (e *ConflictError) Message() string {
	if len(e.Conflicts) == 0 {
		return "Scheduling conflict detected"
	}

	seen := make(map[string]struct{}, len(e.Conflicts))
	var names []string
	for _, c := range e.Conflicts {
		label := fmt.Sprintf("%s %q", c.ResourceType.Display(), c.ResourceName)
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		names = append(names, label)
	}

	if len(names) == 1 {
		return names[0] + " is unavailable at the requested time"
	}
	last := names[len(names)-1]
	return strings.Join(names[:len(names)-1], ", ") + " and " + last + " are unavailable at the requested time"
}
