package domain

import "errors"

// Policy rejections. Returned synchronously before any state mutation or
// persistence attempt; they never leave a partially-mutated page.
var (
	ErrQuotaExceeded = errors.New("plan quota exceeded")
	ErrNotRemovable  = errors.New("section cannot be removed")
	ErrNotDuplicable = errors.New("section cannot be duplicated")
	ErrInvalidOrder  = errors.New("proposed order does not match the page's sections")
	ErrSectionExists = errors.New("section already present on the page")
	ErrReservedField = errors.New("field key is reserved")
	ErrBlockNotFound = errors.New("block not found")
)

// PersistenceError reports a storage failure that happened after the
// in-memory state already changed. The in-memory state is not rolled
// back; callers retry the persistence step or reload.
type PersistenceError struct {
	Op  string // which persistence step failed, e.g. "save content"
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPolicyRejection reports whether err is one of the synchronous policy
// rejections, as opposed to a persistence failure.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrNotRemovable) ||
		errors.Is(err, ErrNotDuplicable) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrSectionExists) ||
		errors.Is(err, ErrReservedField)
}
