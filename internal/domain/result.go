package domain

// OpResult reports the outcome of a composer operation to the caller.
//
// AppliedLocally and Persisted are independent because writes are
// optimistic: the in-memory block list changes first and is not rolled
// back when persistence fails. A result with AppliedLocally true and a
// non-nil Err means the caller should surface a save-status warning and
// may retry the persistence step without repeating the mutation.
type OpResult struct {
	Block          *Block `json:"block,omitempty"`
	AppliedLocally bool   `json:"appliedLocally"`
	Persisted      bool   `json:"persisted"`
	Err            error  `json:"-"`
}

// Ok reports full success: applied and persisted with no error.
func (r OpResult) Ok() bool {
	return r.Err == nil
}
