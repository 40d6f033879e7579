package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/infrastructure/mqtt"
)

// eventQoS is the subscription QoS for event topics.
const eventQoS byte = 1

// ErrInvalidPayload is returned for messages that are not a JSON object.
var ErrInvalidPayload = errors.New("ingest: payload must be a JSON object")

// Subscriber is the subset of the MQTT client the ingestor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// EventEmitter receives decoded events.
type EventEmitter interface {
	EmitEvent(ctx context.Context, eventName string, data map[string]any, userID string) ([]*automation.Run, error)
}

// Logger is the logging interface used by the ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// envelope is the structured event payload.
type envelope struct {
	Data   map[string]any `json:"data"`
	UserID string         `json:"user_id"`
}

// Ingestor subscribes to the event topics and emits each message.
type Ingestor struct {
	sub     Subscriber
	emitter EventEmitter
	logger  Logger
	topics  mqtt.Topics

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// New creates an ingestor. logger may be nil.
func New(sub Subscriber, emitter EventEmitter, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{sub: sub, emitter: emitter, logger: logger}
}

// Start subscribes to flowline/event/+. Runs started by a message inherit
// ctx's values but not its cancellation.
func (in *Ingestor) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return nil
	}

	in.ctx = ctx
	topic := in.topics.AllEvents()
	if err := in.sub.Subscribe(topic, eventQoS, in.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	in.started = true
	in.logger.Info("event ingestion started", "topic", topic)
	return nil
}

// Stop unsubscribes from the event topics.
func (in *Ingestor) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return nil
	}
	in.started = false
	return in.sub.Unsubscribe(in.topics.AllEvents())
}

func (in *Ingestor) handleMessage(topic string, payload []byte) error {
	name, ok := in.topics.EventName(topic)
	if !ok {
		in.logger.Debug("ignoring message on non-event topic", "topic", topic)
		return nil
	}

	data, userID, err := DecodePayload(payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", name, err)
	}

	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := in.emitter.EmitEvent(ctx, name, data, userID)
	in.logger.Debug("event ingested", "event", name, "user_id", userID, "runs", len(runs))
	if err != nil {
		in.logger.Warn("event runs not fully persisted", "event", name, "error", err)
	}
	return nil
}

// DecodePayload splits an event payload into data and user ID.
// An object with a "data" object member is treated as an envelope.
func DecodePayload(payload []byte) (map[string]any, string, error) {
	if len(payload) == 0 {
		return map[string]any{}, "", nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if inner, ok := raw["data"]; ok && isObject(inner) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if env.Data == nil {
			env.Data = map[string]any{}
		}
		return env.Data, env.UserID, nil
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, "", nil
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
