package shared

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
}

// BaseAggregateRoot provides common fields for aggregate roots.
//
// Version implements the optimistic concurrency check: it starts at 0 when
// the aggregate is constructed and every mutating domain method bumps it.
// The persistence layer writes back conditioned on the pre-mutation version
// (Version-1) still being stored; a lost race surfaces as ErrConflict.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion advances the version and refreshes the update timestamp.
// Call it from every mutating domain method, never from infrastructure code.
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
	a.Touch()
}

// NewBaseAggregateRoot creates a new base aggregate root at version 0
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    0,
	}
}
