package driver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/mqtt"
)

// fakeBroker records publishes and lets tests inject agent answers by
// invoking the registered result handler.
type fakeBroker struct {
	mu         sync.Mutex
	published  []publishedMsg
	handler    mqtt.MessageHandler
	publishErr error
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload})
	return nil
}

func (f *fakeBroker) Subscribe(_ string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

// lastCommand decodes the most recently published command.
func (f *fakeBroker) lastCommand(t *testing.T) (string, command) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("no command published")
	}
	msg := f.published[len(f.published)-1]
	var cmd command
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("unmarshalling published command: %v", err)
	}
	return msg.topic, cmd
}

// answer injects an agent result through the subscription handler.
func (f *fakeBroker) answer(t *testing.T, deviceID string, res agentResult) {
	t.Helper()
	payload, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshalling result: %v", err)
	}
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		t.Fatal("no result handler registered")
	}
	if err := handler(mqtt.Topics{}.AgentResult(deviceID), payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func setupDriver(t *testing.T, timeout time.Duration) (*MQTTDriver, *fakeBroker) {
	t.Helper()
	broker := &fakeBroker{}
	d := NewMQTTDriver(broker, 1, timeout)
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return d, broker
}

// dispatchAsync runs DispatchAction in a goroutine and waits for the
// command to appear on the broker before returning.
func dispatchAsync(t *testing.T, d *MQTTDriver, broker *fakeBroker, deviceID, action string) chan struct {
	res *ActionResult
	err error
} {
	t.Helper()
	done := make(chan struct {
		res *ActionResult
		err error
	}, 1)
	go func() {
		res, err := d.DispatchAction(context.Background(), deviceID, action, nil)
		done <- struct {
			res *ActionResult
			err error
		}{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.published)
		broker.mu.Unlock()
		if n > 0 {
			return done
		}
		if time.Now().After(deadline) {
			t.Fatal("command never published")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatchAction_Success(t *testing.T) {
	d, broker := setupDriver(t, time.Second)

	done := dispatchAsync(t, d, broker, "pixel-7-01", "tap")

	topic, cmd := broker.lastCommand(t)
	if topic != (mqtt.Topics{}).AgentCommand("pixel-7-01") {
		t.Errorf("publish topic = %q, want %q", topic, (mqtt.Topics{}).AgentCommand("pixel-7-01"))
	}
	if cmd.Kind != kindAction || cmd.Name != "tap" {
		t.Errorf("command = %+v, want action tap", cmd)
	}
	if cmd.CommandID == "" {
		t.Error("command_id must be set")
	}

	broker.answer(t, "pixel-7-01", agentResult{CommandID: cmd.CommandID, Success: true})

	out := <-done
	if out.err != nil {
		t.Fatalf("DispatchAction() error = %v", out.err)
	}
	if !out.res.Success {
		t.Error("Success = false, want true")
	}
}

func TestDispatchAction_DeviceFailure(t *testing.T) {
	d, broker := setupDriver(t, time.Second)

	done := dispatchAsync(t, d, broker, "pixel-7-01", "tap")
	_, cmd := broker.lastCommand(t)

	broker.answer(t, "pixel-7-01", agentResult{
		CommandID: cmd.CommandID,
		Success:   false,
		Message:   "element #buy not found",
	})

	out := <-done
	if out.err != nil {
		t.Fatalf("DispatchAction() error = %v", out.err)
	}
	if out.res.Success {
		t.Error("Success = true, want false")
	}
	if !strings.Contains(out.res.Message, "not found") {
		t.Errorf("Message = %q, want device failure message", out.res.Message)
	}
}

func TestEvaluateCondition_Branch(t *testing.T) {
	d, broker := setupDriver(t, time.Second)

	done := make(chan struct {
		res *ConditionResult
		err error
	}, 1)
	go func() {
		res, err := d.EvaluateCondition(context.Background(), "pixel-7-01", "elementExists", map[string]any{"selector": "#banner"})
		done <- struct {
			res *ConditionResult
			err error
		}{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.published)
		broker.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never published")
		}
		time.Sleep(time.Millisecond)
	}

	_, cmd := broker.lastCommand(t)
	if cmd.Kind != kindCondition {
		t.Errorf("Kind = %q, want condition", cmd.Kind)
	}

	broker.answer(t, "pixel-7-01", agentResult{CommandID: cmd.CommandID, Success: true, Branch: "no"})

	out := <-done
	if out.err != nil {
		t.Fatalf("EvaluateCondition() error = %v", out.err)
	}
	if out.res.Branch != "no" {
		t.Errorf("Branch = %q, want no", out.res.Branch)
	}
}

func TestDispatchAction_Timeout(t *testing.T) {
	d, _ := setupDriver(t, 20*time.Millisecond)

	_, err := d.DispatchAction(context.Background(), "pixel-7-01", "tap", nil)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Errorf("DispatchAction() error = %v, want ErrCommandTimeout", err)
	}

	// Pending entry must be cleaned up after the timeout.
	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending commands = %d, want 0", pending)
	}
}

func TestDispatchAction_ContextCancelled(t *testing.T) {
	d, _ := setupDriver(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.DispatchAction(ctx, "pixel-7-01", "tap", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DispatchAction() error = %v, want context.Canceled", err)
	}
}

func TestDispatchAction_PublishError(t *testing.T) {
	d, broker := setupDriver(t, time.Second)
	broker.publishErr = errors.New("broker down")

	_, err := d.DispatchAction(context.Background(), "pixel-7-01", "tap", nil)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("DispatchAction() error = %v, want ErrPublishFailed", err)
	}
}

func TestDispatchAction_NotStarted(t *testing.T) {
	d := NewMQTTDriver(&fakeBroker{}, 1, time.Second)

	_, err := d.DispatchAction(context.Background(), "pixel-7-01", "tap", nil)
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("DispatchAction() error = %v, want ErrNotStarted", err)
	}
}

func TestHandleResult_UnmatchedDropped(t *testing.T) {
	_, broker := setupDriver(t, time.Second)

	// An answer for a command nobody is waiting on must be a no-op.
	broker.answer(t, "pixel-7-01", agentResult{CommandID: "ghost", Success: true})
}

func TestRoundTrip_ConcurrentCorrelation(t *testing.T) {
	d, broker := setupDriver(t, time.Second)

	type out struct {
		res *ActionResult
		err error
	}
	doneA := make(chan out, 1)
	doneB := make(chan out, 1)

	go func() {
		res, err := d.DispatchAction(context.Background(), "dev-a", "tap", nil)
		doneA <- out{res, err}
	}()
	go func() {
		res, err := d.DispatchAction(context.Background(), "dev-b", "swipe", nil)
		doneB <- out{res, err}
	}()

	// Wait for both commands to land on the broker.
	deadline := time.Now().Add(time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.published)
		broker.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("commands never published")
		}
		time.Sleep(time.Millisecond)
	}

	// Answer each command; success flag differs so we can tell them apart.
	broker.mu.Lock()
	msgs := append([]publishedMsg(nil), broker.published...)
	broker.mu.Unlock()

	for _, msg := range msgs {
		var cmd command
		if err := json.Unmarshal(msg.payload, &cmd); err != nil {
			t.Fatalf("unmarshalling: %v", err)
		}
		broker.answer(t, "any", agentResult{
			CommandID: cmd.CommandID,
			Success:   cmd.Name == "tap",
			Message:   cmd.Name,
		})
	}

	a := <-doneA
	b := <-doneB
	if a.err != nil || b.err != nil {
		t.Fatalf("errors: %v, %v", a.err, b.err)
	}
	if !a.res.Success || a.res.Message != "tap" {
		t.Errorf("dev-a result = %+v, want success tap", a.res)
	}
	if b.res.Success || b.res.Message != "swipe" {
		t.Errorf("dev-b result = %+v, want failed swipe", b.res)
	}
}
