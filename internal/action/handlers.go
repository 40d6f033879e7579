package action

import (
	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/record"
)

// Deps holds the collaborators the built-in handlers need. Nil fields
// leave the corresponding handler registered but failing with
// ErrNotConfigured, so misconfiguration shows up in run results.
type Deps struct {
	Records   record.Store
	Publisher Publisher
	Mailer    Mailer
	Team      TeamService
	Spaces    SpaceRegistry
	Notify    NotifyConfig
	Webhook   WebhookConfig
	Logger    Logger

	// Custom is registered for the custom action type when set.
	Custom automation.ActionHandler
}

// Handlers builds the handler table for automation.NewDispatcher.
func Handlers(deps Deps) map[automation.ActionType]automation.ActionHandler {
	handlers := map[automation.ActionType]automation.ActionHandler{
		automation.ActionCreate:    NewCreateHandler(deps.Records),
		automation.ActionUpdate:    NewUpdateHandler(deps.Records),
		automation.ActionDelete:    NewDeleteHandler(deps.Records),
		automation.ActionNotify:    NewNotifyHandler(deps.Publisher, deps.Notify),
		automation.ActionEmail:     NewEmailHandler(deps.Mailer),
		automation.ActionWebhook:   NewWebhookHandler(deps.Webhook, deps.Logger),
		automation.ActionAgentTask: NewAgentTaskHandler(deps.Team),
		automation.ActionWorkflow:  NewWorkflowHandler(deps.Spaces),
	}
	if deps.Custom != nil {
		handlers[automation.ActionCustom] = deps.Custom
	}
	return handlers
}
