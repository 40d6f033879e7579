// Package action provides the concrete handlers behind the automation
// dispatcher's handler table.
//
// Each handler implements automation.ActionHandler for one action type:
//
//	create / update / delete  -> record.Store
//	notify                    -> MQTT publish (+ optional Slack webhook)
//	email                     -> Mailer (SMTP)
//	webhook                   -> outbound HTTP, guarded by a per-host circuit breaker
//	agent_task                -> TeamService
//	workflow                  -> SpaceRegistry
//
// String values in action config and data templates are rendered against
// the execution context before use. Handlers report failure by returning an
// error or a result with success=false; the dispatcher owns retries.
package action
