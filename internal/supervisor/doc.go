// Package supervisor ties the observatory supervisor together.
//
// A Supervisor owns one handler registry, one check list evaluator and one
// state machine. It wakes the machine at the configured frequency, turns
// instrument events and operator commands into flag changes and item runs,
// and reports every failure and status change to the operators.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.Config{
//	    Site:        "oper",
//	    Instruments: []string{"site", "dome", "telescope"},
//	    Interval:    100 * time.Second,
//	}, supervisor.Deps{
//	    Store:  store,
//	    Items:  items,
//	    Lookup: lookup,
//	    Logger: log,
//	})
//
//	if err := sup.Init(ctx); err != nil {
//	    return err
//	}
//	sup.Run(ctx) // blocks until ctx is done
package supervisor
