package merge

import (
	"fmt"

	"github.com/rfletcher/jwlsync/internal/schema"
)

// KindError reports that merging one entity kind failed. The destination
// transaction is rolled back; nothing from the run persists.
type KindError struct {
	Kind schema.Kind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("failed to merge %s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// CommitError reports that the destination rejected the merge transaction as
// a whole.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit merge transaction: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
