package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
)

// ResponseHandler receives the JSON body of one response message.
type ResponseHandler func(payload []byte) error

// Subscriber manages the subscriptions of a run. It ensures idempotent
// subscription handling across reconnects.
type Subscriber struct {
	mu         sync.RWMutex
	client     Broker
	topics     Topics
	subscribed map[string]bool

	frames  chan struct{}
	dropped atomic.Uint64
}

// NewSubscriber creates a subscriber. Frame ticks are buffered up to
// frameBuffer; further ticks are dropped while the frame loop is busy.
func NewSubscriber(client Broker, topics Topics, frameBuffer int) *Subscriber {
	if frameBuffer < 1 {
		frameBuffer = 1
	}
	return &Subscriber{
		client:     client,
		topics:     topics,
		subscribed: make(map[string]bool),
		frames:     make(chan struct{}, frameBuffer),
	}
}

func (s *Subscriber) subscribe(topic string, handler paho.MessageHandler) error {
	s.mu.Lock()
	if s.subscribed[topic] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.client.Subscribe(topic, handler); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed[topic] = true
	s.mu.Unlock()
	return nil
}

// SubscribeResponses routes response messages to handle. A message that
// is not a JSON object or that handle refuses emits response.rejected.
func (s *Subscriber) SubscribeResponses(handle ResponseHandler) error {
	topic := s.topics.Response()
	return s.subscribe(topic, func(_ paho.Client, msg paho.Message) {
		payload := msg.Payload()
		var probe map[string]interface{}
		if err := json.Unmarshal(payload, &probe); err != nil {
			rejectResponse(topic, payload, fmt.Errorf("invalid response JSON: %w", err))
			return
		}
		if err := handle(payload); err != nil {
			rejectResponse(topic, payload, err)
		}
	})
}

func rejectResponse(topic string, payload []byte, err error) {
	events.Emit("warn", "response.rejected", err.Error(), map[string]interface{}{
		"topic":   topic,
		"payload": string(payload),
		"error":   err.Error(),
	})
}

// SubscribeFrames turns display frame messages into ticks on Frames.
func (s *Subscriber) SubscribeFrames() error {
	return s.subscribe(s.topics.DisplayFrame(), func(paho.Client, paho.Message) {
		select {
		case s.frames <- struct{}{}:
		default:
			s.dropped.Add(1)
		}
	})
}

// SubscribeDisplays routes display registration messages to the monitor.
func (s *Subscriber) SubscribeDisplays(m *Monitor) error {
	topic := s.topics.DisplayHello()
	return s.subscribe(topic, func(_ paho.Client, msg paho.Message) {
		payload, err := ParseRegistration(msg.Payload())
		if err != nil {
			events.Emit("error", "renderer.error", "invalid display registration", map[string]interface{}{
				"topic": topic,
				"error": err.Error(),
			})
			return
		}
		m.HandleRegistration(payload)
	})
}

// Frames delivers one tick per display refresh.
func (s *Subscriber) Frames() <-chan struct{} {
	return s.frames
}

// DroppedFrames counts frame ticks dropped because the loop was busy.
func (s *Subscriber) DroppedFrames() uint64 {
	return s.dropped.Load()
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *Subscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// SubscribedTopics returns a list of all subscribed topics.
func (s *Subscriber) SubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	return topics
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (s *Subscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
