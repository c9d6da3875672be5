// Package instrument holds the operating flag of every supervised instrument
// and the named keys that keep an instrument locked.
//
// # Flags
//
// Each instrument has exactly one current Flag:
//
//	UNSET      nothing known yet (lazily created rows start here)
//	READY      may be opened and operated
//	OPERATING  opened by the supervisor and expected to be working
//	CLOSE      must be closed and must not be operated
//	LOCK       held closed by one or more named keys
//	ERROR      state uncertain after a failed operation
//
// Any flag may follow any other. The response handlers encode the intended
// transitions; the store only enforces the lock rule.
//
// # Lock protocol
//
// Every update is one read-modify-write inside a single SQLite transaction,
// serialised by the Store's mutex:
//
//	current != LOCK                write flag; LOCK creates or reactivates the key
//	current == LOCK, new != LOCK   deactivate the key; refuse while any key is active
//	current == LOCK, new == LOCK   create or reactivate the key; flag stays LOCK
//
// Several automated responses can therefore hold the same instrument closed,
// and it only becomes operable once every holder has released its key.
//
// # Key Types
//
//   - Flag: the operating flag enum
//   - Key: a named lock holder
//   - Status: flag, timestamps and keys of one instrument
//   - Store: the lock-aware API used by the supervisor and the response handlers
//   - Repository / SQLiteRepository: persistence
//
// # Thread Safety
//
// Store methods are safe for concurrent use.
//
// # Usage
//
//	store := instrument.NewStore(instrument.NewSQLiteRepository(db.DB), logger)
//	if err := store.Load(ctx, "site", "dome", "telescope"); err != nil {
//	    return err
//	}
//	if err := store.Lock(ctx, "dome", "weather"); err != nil {
//	    return err // always surfaced: a lock that did not persist is unsafe
//	}
//	released, err := store.Unlock(ctx, "dome", "weather")
package instrument
