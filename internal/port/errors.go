package port

import "errors"

// ErrOptimisticLock is returned by adapters when a conditional write finds the
// stored state no longer matches the expected one.
var ErrOptimisticLock = errors.New("optimistic lock conflict")
