// Package checklist evaluates the monitored items of the observatory.
//
// A monitored item is a named rule: an ordered chain of checks that must
// all trigger, guarding an ordered chain of responses. Checks and responses
// are stored polymorphically (a kind tag plus a JSON params object) and are
// executed by handlers looked up in a Registry.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                Evaluator (evaluator.go)               │
//	│  ┌──────────────┐          ┌──────────────────┐      │
//	│  │   Registry   │          │    Repository    │      │
//	│  │(registry.go) │          │ (repository.go)  │      │
//	│  └──────────────┘          └──────────────────┘      │
//	│  Per item:                                            │
//	│  1. RUNNING_CHECKS  conjunctive, stop at first false  │
//	│  2. DECIDING        eager or status changed           │
//	│  3. RUNNING_RESPONSES  cascade per EagerResponse      │
//	│  4. DONE            stamp status and timestamps       │
//	└──────────────────────────────────────────────────────┘
//
// # Status stamping
//
//   - Every evaluation stamps LastUpdate.
//   - A non-triggering chain records UNSET, a failing check ERROR and an
//     aborted pass ABORTED. None of these touch LastChange.
//   - When responses run, Status and LastChange are stamped together.
//
// # Abort
//
// The abort flag supplied with SetAbort is polled before and between checks,
// before and between responses, and between items. A raised flag ends the
// pass with ErrCheckAborted, which is a cancellation rather than a failure.
//
// # Capabilities
//
// Handlers declare the capabilities they need. Registry.Bind resolves them
// through a capability.Lookup; a handler whose capability is missing fails
// closed.
//
// # Usage
//
//	registry := checklist.NewRegistry()
//	checks.RegisterAll(registry, sup)
//	responses.RegisterAll(registry, sup, runner)
//	registry.Bind(ctx, lookup)
//
//	eval := checklist.NewEvaluator(checklist.NewSQLiteRepository(db), registry, log)
//	eval.SetAbort(machine.Aborted)
//	summary, err := eval.Run(ctx)
package checklist
