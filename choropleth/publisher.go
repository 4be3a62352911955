package choropleth

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 2 * time.Second

// StatePublisher publishes widget state snapshots to MQTT.
type StatePublisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewStatePublisher creates a publisher writing under prefix. If client is
// nil, publishing is disabled.
func NewStatePublisher(client mqtt.Client, prefix string) *StatePublisher {
	if prefix == "" {
		prefix = "choromap"
	}
	return &StatePublisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// statePayload is the retained message on <prefix>/state.
type statePayload struct {
	State
	Event     EventKind `json:"event"`
	Timestamp int64     `json:"timestamp"`
}

// PublishState publishes st to <prefix>/state and waits for the broker to
// take it.
func (p *StatePublisher) PublishState(st State, event EventKind) error {
	token, topic, err := p.publish(st, event)
	if err != nil {
		return err
	}
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *StatePublisher) publish(st State, event EventKind) (mqtt.Token, string, error) {
	if p.client == nil || !p.client.IsConnected() {
		return nil, "", fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(statePayload{State: st, Event: event, Timestamp: time.Now().Unix()})
	if err != nil {
		return nil, "", fmt.Errorf("marshaling state: %w", err)
	}

	topic := p.publishPrefix + "/state"
	return p.client.Publish(topic, p.qos, p.retain, payload), topic, nil
}

// Listener returns a widget listener that publishes the state after loads,
// column changes and clicks. Transform events are not published. The
// listener runs on the event loop, so it never waits on the broker; the
// delivery outcome is logged from a separate goroutine.
func (p *StatePublisher) Listener() Listener {
	return func(w *Widget, e Event) {
		switch e.Kind {
		case EventTransformed, EventValuesUpdated:
			return
		}
		if p.client == nil || !p.client.IsConnected() {
			return
		}
		token, topic, err := p.publish(w.State(), e.Kind)
		if err != nil {
			log.Printf("[MQTT] publishing state: %v", err)
			return
		}
		go func() {
			if !token.WaitTimeout(publishTimeout) {
				log.Printf("[MQTT] publishing to %s: timed out", topic)
				return
			}
			if err := token.Error(); err != nil {
				log.Printf("[MQTT] publishing to %s: %v", topic, err)
			}
		}()
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *StatePublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *StatePublisher) SetRetain(retain bool) {
	p.retain = retain
}

// Prefix returns the topic prefix state is published under.
func (p *StatePublisher) Prefix() string {
	return p.publishPrefix
}
