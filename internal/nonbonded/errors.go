package nonbonded

import "errors"

// Domain errors. Configuration and topology errors are fatal; a missing
// optional capability is not an error at all (the engine falls back).
var (
	// ErrInvalidConfiguration indicates the force description cannot be
	// realized (bad cutoff, unknown method, invalid box).
	ErrInvalidConfiguration = errors.New("nonbonded: invalid configuration")

	// ErrTopologyChanged indicates a parameter update tried to change the
	// particle count, the Coulomb/LJ activity flags, or the set of
	// non-excluded exceptions after initialization.
	ErrTopologyChanged = errors.New("nonbonded: topology changed since initialization")

	// ErrUnsupportedCombination indicates a query that this build cannot
	// answer, e.g. LJ-PME parameters while the CPU offload engine owns the
	// reciprocal path.
	ErrUnsupportedCombination = errors.New("nonbonded: unsupported combination")

	// ErrWrongMethod indicates PME or LJ-PME diagnostics were requested from
	// a kernel built with a different method.
	ErrWrongMethod = errors.New("nonbonded: method does not match request")
)
