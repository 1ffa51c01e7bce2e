package sync

import "fmt"

// IncompatibleInputError reports that one of the backups cannot take part in
// a merge: a malformed archive, a missing or invalid manifest or store file,
// or manifests that declare different schema versions.
type IncompatibleInputError struct {
	Reason string
	Err    error
}

func (e *IncompatibleInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("incompatible input: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("incompatible input: %s", e.Reason)
}

func (e *IncompatibleInputError) Unwrap() error {
	return e.Err
}

// MergeFailureError reports that merging one entity kind failed at the store
// level. The destination transaction was rolled back; the destination backup
// is unchanged.
type MergeFailureError struct {
	Table string
	Err   error
}

func (e *MergeFailureError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("merge failed: %v", e.Err)
	}
	return fmt.Sprintf("merge failed on %s: %v", e.Table, e.Err)
}

func (e *MergeFailureError) Unwrap() error {
	return e.Err
}

// ConstraintViolationError reports that the destination store rejected the
// merge transaction as a whole at commit time.
type ConstraintViolationError struct {
	Err error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("merge rejected by destination store: %v", e.Err)
}

func (e *ConstraintViolationError) Unwrap() error {
	return e.Err
}

// IOFailureError reports a filesystem or archive failure outside the stores:
// extracting, packing, hashing, or moving files.
type IOFailureError struct {
	Op  string
	Err error
}

func (e *IOFailureError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *IOFailureError) Unwrap() error {
	return e.Err
}
