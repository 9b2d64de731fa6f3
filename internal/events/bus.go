// Package events is the in-process pub/sub bus feeding the dashboard feed.
package events

import (
	"sync"
	"time"
)

// EventType classifies a bus event.
type EventType string

const (
	EventSignalNotified     EventType = "SIGNAL_NOTIFIED"
	EventAlertTriggered     EventType = "ALERT_TRIGGERED"
	EventScreeningCompleted EventType = "SCREENING_COMPLETED"
	EventPlanGenerated      EventType = "PLAN_GENERATED"
	EventWorkerError        EventType = "WORKER_ERROR"
	EventServiceStarted     EventType = "SERVICE_STARTED"
	EventServiceStopped     EventType = "SERVICE_STOPPED"
)

// Event is one bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers run on their own goroutine per
// event; slow handlers never block publishers.
type Subscriber func(Event)

// EventBus manages publishing and subscriptions.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish fans the event out without blocking the caller.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalNotified records that a signal-change notification went out.
func (eb *EventBus) PublishSignalNotified(chatID int64, symbol, signal string) {
	eb.Publish(Event{
		Type: EventSignalNotified,
		Data: map[string]interface{}{
			"chat_id": chatID,
			"symbol":  symbol,
			"signal":  signal,
		},
	})
}

// PublishAlertTriggered records a fired price alert.
func (eb *EventBus) PublishAlertTriggered(alertID, chatID int64, symbol string, price, target float64) {
	eb.Publish(Event{
		Type: EventAlertTriggered,
		Data: map[string]interface{}{
			"alert_id": alertID,
			"chat_id":  chatID,
			"symbol":   symbol,
			"price":    price,
			"target":   target,
		},
	})
}

// PublishScreeningCompleted records a finished screening run.
func (eb *EventBus) PublishScreeningCompleted(chatID int64, timeframe string, results int, topScore float64) {
	eb.Publish(Event{
		Type: EventScreeningCompleted,
		Data: map[string]interface{}{
			"chat_id":   chatID,
			"timeframe": timeframe,
			"results":   results,
			"top_score": topScore,
		},
	})
}

// PublishPlanGenerated records a generated trading plan.
func (eb *EventBus) PublishPlanGenerated(symbol, timeframe, signal string, confidence float64) {
	eb.Publish(Event{
		Type: EventPlanGenerated,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"timeframe":  timeframe,
			"signal":     signal,
			"confidence": confidence,
		},
	})
}
