// Package automation provides the workflow automation engine for Flowline.
//
// An automation pairs one trigger (event, schedule, webhook, condition or
// manual) with an ordered list of actions. When the trigger fires, the
// engine builds an execution context, runs each action in order through
// its handler, and records the outcome as a Run.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                    │
//	│  ┌──────────────┐    ┌──────────────┐                 │
//	│  │   Registry   │    │  Repository  │                 │
//	│  │(registry.go) │    │(repository.go)│                │
//	│  └──────────────┘    └──────────────┘                 │
//	│        │  listeners[event_name] → automation IDs      │
//	│        ▼                                              │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  Execution Pipeline                           │    │
//	│  │  1. context = trigger data + automation meta  │    │
//	│  │  2. run_if guard (Evaluator)                  │    │
//	│  │  3. Dispatcher: handler with fixed retry      │    │
//	│  │  4. result stored as action_<id>              │    │
//	│  │  5. stats updated, run persisted              │    │
//	│  │  6. RunListeners notified                     │    │
//	│  └──────────────────────────────────────────────┘    │
//	│        ▲                                              │
//	│  Scheduler (scheduler.go): 60s poll, 5-field matcher  │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Automation: Named, owned rule with one Trigger and ordered Actions
//   - Trigger: What causes an automation to run
//   - Action: One unit of work, optionally gated by a run_if expression
//   - Run: Record of one execution, one Result per action
//   - Evaluator: Restricted boolean/comparison expression language
//   - Renderer: {{path}} placeholder substitution over nested values
//   - Dispatcher: ActionType → ActionHandler table with retry
//
// # Expression Language
//
// The evaluator has no parentheses. Operators are recognised in a fixed
// order: comparisons (>=, <=, ==, !=, >, <), then " and ", " or ", a
// leading "not ", then " contains ", then a bare value. Any error makes the
// whole expression false.
//
// # Thread Safety
//
// Registry, Engine and Scheduler are safe for concurrent use. Runs of the
// same automation are not serialised: two triggers arriving together
// produce two independent runs.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db.DB)
//	dispatcher, err := automation.NewDispatcher(handlers)
//	engine := automation.NewEngine(repo, dispatcher, log)
//
//	if err := engine.Bootstrap(ctx, ""); err != nil {
//	    return err
//	}
//	defer engine.StopScheduler()
//
//	runs, err := engine.EmitEvent(ctx, "task.created", data, userID)
package automation
