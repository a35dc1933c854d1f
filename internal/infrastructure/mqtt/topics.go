package mqtt

import "fmt"

// Topic prefixes for the QA console MQTT hierarchy.
//
// Device agent topics use the flat scheme: qaconsole/{category}/{device_id}[...]
// Every device host runs an agent that subscribes to its command topic and
// publishes results and heartbeats back.
const (
	// TopicPrefix is the base for all QA console topics.
	TopicPrefix = "qaconsole"

	// TopicPrefixSystem is the base for system topics (core status, LWT).
	TopicPrefixSystem = "qaconsole/system"
)

// Topics provides builders for QA console MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.AgentCommand("pixel-7-01")
//	// Returns: "qaconsole/command/pixel-7-01"
type Topics struct{}

// AgentCommand returns the topic for dispatching a command to a device agent.
//
// Example: qaconsole/command/pixel-7-01
func (Topics) AgentCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// AgentResult returns the topic a device agent publishes command results on.
//
// Example: qaconsole/result/pixel-7-01
func (Topics) AgentResult(deviceID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, deviceID)
}

// AllAgentResults returns the wildcard subscription matching every agent's
// result topic.
//
// Example: qaconsole/result/+
func (Topics) AllAgentResults() string {
	return TopicPrefix + "/result/+"
}

// AgentStatus returns the topic for a device agent's online/offline status.
//
// Example: qaconsole/agent/pixel-7-01/status
func (Topics) AgentStatus(deviceID string) string {
	return fmt.Sprintf("%s/agent/%s/status", TopicPrefix, deviceID)
}

// AllAgentStatuses returns the wildcard subscription matching every agent's
// status topic.
func (Topics) AllAgentStatuses() string {
	return TopicPrefix + "/agent/+/status"
}

// SystemStatus returns the topic for the core's own online/offline status.
// Used for the LWT message and graceful shutdown notices.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceIDFromResultTopic extracts the device ID from an agent result topic.
// Returns "" if the topic does not match the expected shape.
func DeviceIDFromResultTopic(topic string) string {
	var deviceID string
	if _, err := fmt.Sscanf(topic, TopicPrefix+"/result/%s", &deviceID); err != nil {
		return ""
	}
	return deviceID
}

// DeviceIDFromStatusTopic extracts the device ID from an agent status topic.
// Returns "" if the topic does not match the expected shape.
func DeviceIDFromStatusTopic(topic string) string {
	var rest string
	if _, err := fmt.Sscanf(topic, TopicPrefix+"/agent/%s", &rest); err != nil {
		return ""
	}
	// rest is "{device_id}/status"
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return ""
}
