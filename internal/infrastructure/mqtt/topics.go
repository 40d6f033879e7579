package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	TopicPrefix       = "flowline"
	TopicPrefixEvent  = TopicPrefix + "/event"
	TopicPrefixCore   = TopicPrefix + "/core"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds Flowline topic names.
//
//	mqtt.Topics{}.Event("task.created") // flowline/event/task.created
type Topics struct{}

// Event is the ingest topic for a named event.
func (Topics) Event(eventName string) string {
	return TopicPrefixEvent + "/" + eventName
}

// AllEvents matches every ingest topic.
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/+"
}

// EventName extracts the event name from an ingest topic. ok is false when
// topic is not a single-level child of flowline/event.
func (Topics) EventName(topic string) (name string, ok bool) {
	name, found := strings.CutPrefix(topic, TopicPrefixEvent+"/")
	if !found || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// AutomationRun carries the summary of each completed run.
func (Topics) AutomationRun(automationID string) string {
	return fmt.Sprintf("%s/automation/%s/run", TopicPrefixCore, automationID)
}

// AllAutomationRuns matches every run-completed topic.
func (Topics) AllAutomationRuns() string {
	return TopicPrefixCore + "/automation/+/run"
}

// AgentTask is where agent_task actions hand work to an agent.
func (Topics) AgentTask(agentID string) string {
	return fmt.Sprintf("%s/agent/%s/task", TopicPrefix, agentID)
}

// Workflow is where workflow actions start a workflow in a scope.
func (Topics) Workflow(scope, workflowID string) string {
	return fmt.Sprintf("%s/space/%s/workflow/%s", TopicPrefix, scope, workflowID)
}

// SystemStatus carries retained online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
