package shared

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// LockSpace partitions the advisory-lock key space. Every subsystem that
// serializes on a resource kind registers its own space; the registry rejects
// duplicate ids and names so two subsystems can never alias each other's
// locks.
type LockSpace struct {
	id   int32
	name string
}

// ID returns the numeric space identifier used as the lock classifier
func (s LockSpace) ID() int32 { return s.id }

// Name returns the human-readable space name
func (s LockSpace) Name() string { return s.name }

func (s LockSpace) String() string { return s.name }

var (
	lockSpaceMu      sync.Mutex
	lockSpacesByID   = make(map[int32]string)
	lockSpacesByName = make(map[string]int32)
)

// RegisterLockSpace reserves a lock space. It panics on a duplicate id or
// name: spaces are registered from package init blocks, and a collision is a
// programming error that must fail fast rather than silently share locks.
func RegisterLockSpace(id int32, name string) LockSpace {
	lockSpaceMu.Lock()
	defer lockSpaceMu.Unlock()

	if existing, ok := lockSpacesByID[id]; ok {
		panic(fmt.Sprintf("lock space id %d already registered as %q", id, existing))
	}
	if existing, ok := lockSpacesByName[name]; ok {
		panic(fmt.Sprintf("lock space name %q already registered with id %d", name, existing))
	}

	lockSpacesByID[id] = name
	lockSpacesByName[name] = id
	return LockSpace{id: id, name: name}
}

// RegisteredLockSpaces lists all registered spaces, ordered by id
func RegisteredLockSpaces() []LockSpace {
	lockSpaceMu.Lock()
	defer lockSpaceMu.Unlock()

	spaces := make([]LockSpace, 0, len(lockSpacesByID))
	for id, name := range lockSpacesByID {
		spaces = append(spaces, LockSpace{id: id, name: name})
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].id < spaces[j].id })
	return spaces
}

// Well-known lock spaces. Each guards check-then-act sequences on one
// resource kind for the lifetime of a single unit of work.
var (
	LockSpaceVehicle = RegisterLockSpace(1, "vehicle")
	LockSpaceRental  = RegisterLockSpace(2, "rental")
	LockSpaceInvoice = RegisterLockSpace(3, "invoice")
)

// ResourceLocker acquires exclusive, resource-scoped locks bound to the
// current unit of work. Acquire blocks for a bounded time; on timeout it
// returns ErrLockTimeout so the caller can retry with backoff. The lock is
// released automatically when the unit of work commits or rolls back — it
// never outlives the transaction.
type ResourceLocker interface {
	// Acquire locks (space, resourceID) for the remainder of the unit of
	// work. Must be called before any read used for a business decision on
	// that resource.
	Acquire(ctx context.Context, space LockSpace, resourceID uuid.UUID) error
}
