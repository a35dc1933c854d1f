package mqtt

import "testing"

func TestTopics_Builders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"agent command", topics.AgentCommand("pixel-7-01"), "qaconsole/command/pixel-7-01"},
		{"agent result", topics.AgentResult("pixel-7-01"), "qaconsole/result/pixel-7-01"},
		{"all agent results", topics.AllAgentResults(), "qaconsole/result/+"},
		{"agent status", topics.AgentStatus("iphone-15-02"), "qaconsole/agent/iphone-15-02/status"},
		{"all agent statuses", topics.AllAgentStatuses(), "qaconsole/agent/+/status"},
		{"system status", topics.SystemStatus(), "qaconsole/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceIDFromResultTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"qaconsole/result/pixel-7-01", "pixel-7-01"},
		{"qaconsole/command/pixel-7-01", ""},
		{"something/else", ""},
	}

	for _, tt := range tests {
		if got := DeviceIDFromResultTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceIDFromResultTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestDeviceIDFromStatusTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"qaconsole/agent/pixel-7-01/status", "pixel-7-01"},
		{"qaconsole/result/pixel-7-01", ""},
	}

	for _, tt := range tests {
		if got := DeviceIDFromStatusTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceIDFromStatusTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
