package pipeline

import (
	"fmt"
	"strings"
)

// FetchError means the source object could not be brought local. NotFound
// marks a source deleted while the job sat in the queue; the job aborts
// without touching the asset's status.
type FetchError struct {
	Key      string
	NotFound bool
	Err      error
}

func (e *FetchError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("fetch %s: source object gone", e.Key)
	}
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// LadderError aggregates the renditions that failed. The playable core
// could not be produced, so the job as a whole fails even though sibling
// renditions ran to completion.
type LadderError struct {
	Failed []string
}

func (e *LadderError) Error() string {
	return fmt.Sprintf("ladder: %d renditions failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
}
