package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the MQTT driver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the slice of the MQTT client the driver needs.
// Satisfied by *mqtt.Client; tests supply a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// command is the wire format published to an agent's command topic.
type command struct {
	CommandID string         `json:"command_id"`
	Kind      string         `json:"kind"` // action or condition
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
}

const (
	kindAction    = "action"
	kindCondition = "condition"
)

// agentResult is the wire format agents publish to their result topic.
type agentResult struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Branch    string `json:"branch,omitempty"`
	Message   string `json:"message,omitempty"`
}

// MQTTDriver implements Driver over the MQTT broker.
//
// Commands are published to qaconsole/command/{deviceId}; each carries
// a unique command_id. Agents answer on qaconsole/result/{deviceId},
// and a single wildcard subscription correlates answers back to the
// waiting caller by command_id. Late or unknown answers are dropped.
type MQTTDriver struct {
	broker  Broker
	qos     byte
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]chan agentResult
	started bool
}

// NewMQTTDriver creates a driver bound to a broker connection.
// timeout is the per-command wait for an agent answer.
func NewMQTTDriver(broker Broker, qos byte, timeout time.Duration) *MQTTDriver {
	return &MQTTDriver{
		broker:  broker,
		qos:     qos,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string]chan agentResult),
	}
}

// SetLogger sets the logger for the driver.
func (d *MQTTDriver) SetLogger(logger Logger) {
	d.logger = logger
}

// Start subscribes to the shared result topic. Must be called once
// before any dispatch.
func (d *MQTTDriver) Start() error {
	if err := d.broker.Subscribe(mqtt.Topics{}.AllAgentResults(), d.qos, d.handleResult); err != nil {
		return fmt.Errorf("subscribing to results: %w", err)
	}

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	return nil
}

// DispatchAction sends an action command to a device agent and waits
// for its answer.
func (d *MQTTDriver) DispatchAction(ctx context.Context, deviceID, action string, params map[string]any) (*ActionResult, error) {
	res, err := d.roundTrip(ctx, deviceID, kindAction, action, params)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Success: res.Success, Message: res.Message}, nil
}

// EvaluateCondition sends a condition command to a device agent and
// waits for its resolved branch.
func (d *MQTTDriver) EvaluateCondition(ctx context.Context, deviceID, condition string, params map[string]any) (*ConditionResult, error) {
	res, err := d.roundTrip(ctx, deviceID, kindCondition, condition, params)
	if err != nil {
		return nil, err
	}
	return &ConditionResult{Success: res.Success, Branch: res.Branch, Message: res.Message}, nil
}

// roundTrip publishes one command and blocks until an answer, a
// timeout, or context cancellation.
func (d *MQTTDriver) roundTrip(ctx context.Context, deviceID, kind, name string, params map[string]any) (*agentResult, error) {
	cmd := command{
		CommandID: uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Params:    params,
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	ch := make(chan agentResult, 1)

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil, ErrNotStarted
	}
	d.pending[cmd.CommandID] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, cmd.CommandID)
		d.mu.Unlock()
	}()

	if err := d.broker.Publish(mqtt.Topics{}.AgentCommand(deviceID), payload, d.qos, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	d.logger.Debug("command dispatched",
		"device_id", deviceID,
		"command_id", cmd.CommandID,
		"kind", kind,
		"name", name,
	)

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return &res, nil
	case <-timer.C:
		d.logger.Warn("command timed out",
			"device_id", deviceID,
			"command_id", cmd.CommandID,
			"name", name,
			"timeout", d.timeout,
		)
		return nil, fmt.Errorf("%w: %s on device %s", ErrCommandTimeout, name, deviceID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleResult routes an agent answer to the waiting caller.
func (d *MQTTDriver) handleResult(topic string, payload []byte) error {
	var res agentResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("unmarshalling result from %s: %w", topic, err)
	}

	d.mu.Lock()
	ch, ok := d.pending[res.CommandID]
	d.mu.Unlock()

	if !ok {
		// Late answer after timeout or cancellation. Not an error.
		d.logger.Debug("dropping unmatched result", "topic", topic, "command_id", res.CommandID)
		return nil
	}

	select {
	case ch <- res:
	default:
	}
	return nil
}
