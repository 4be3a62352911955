package choropleth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Feed actions carried by FeedMessage.Action.
const (
	FeedSet        = "set"
	FeedRemove     = "remove"
	FeedUnregister = "unregister"
	FeedShow       = "show"
)

// feedTimeout bounds how long one feed message may wait for the loop.
const feedTimeout = 5 * time.Second

// FeedMessage is one update read from the feed topic. With the default
// "set" action, Values are keyed by region index and regions missing from
// Values get Default.
type FeedMessage struct {
	Action  string           `json:"action,omitempty"`
	Column  string           `json:"column"`
	Values  map[string]Value `json:"values,omitempty"`
	Default *Value           `json:"default,omitempty"`
	Silent  bool             `json:"silent,omitempty"`
}

// Apply performs the message on w.
func (m FeedMessage) Apply(w *Widget) error {
	switch m.Action {
	case "", FeedSet:
		var fill Filler
		if m.Default != nil {
			fill = ConstFiller(*m.Default)
		}
		return w.AddPlottedData(m.Column, m.Values, fill, m.Silent)
	case FeedRemove:
		return w.RemoveColumn(m.Column)
	case FeedUnregister:
		return w.UnregisterColumn(m.Column)
	case FeedShow:
		return w.ShowColumn(m.Column)
	}
	return fmt.Errorf("unknown feed action %q", m.Action)
}

// Feed subscribes to the MQTT feed topic and applies column updates to a
// widget through its loop.
type Feed struct {
	client      mqtt.Client
	config      *Config
	loop        *Loop
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects the value feed. If neither MQTT_BROKER nor mqtt.broker
// is set, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, loop *Loop) (*Feed, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil || config.MQTT.FeedTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but mqtt.feedTopic is empty")
	}

	feed := &Feed{config: config, loop: loop}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := envOr("MQTT_CLIENT_ID", config.MQTT.ClientID)
	if clientID == "" {
		clientID = "choromap"
	}
	opts.SetClientID(clientID)

	if username := envOr("MQTT_USERNAME", config.MQTT.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", config.MQTT.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Updates must reach the widget in publish order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(feed.onConnect)
	opts.SetConnectionLostHandler(feed.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] reconnecting...")
	})

	feed.client = mqtt.NewClient(opts)
	go feed.connectWithRetry()
	return feed, nil
}

// newFeedWithClient builds a feed around an existing client.
func newFeedWithClient(client mqtt.Client, config *Config, loop *Loop) *Feed {
	return &Feed{client: client, config: config, loop: loop}
}

func (f *Feed) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := f.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected")
				f.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

func (f *Feed) onConnect(client mqtt.Client) {
	f.setConnected(true)
	topic := f.config.MQTT.FeedTopic
	log.Printf("[MQTT] subscribing to %s", topic)
	token := client.Subscribe(topic, 1, f.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
	}
}

func (f *Feed) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	f.setConnected(false)
}

func (f *Feed) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var m FeedMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("[MQTT] bad feed payload on %s: %v", msg.Topic(), err)
		return
	}
	if m.Column == "" {
		log.Printf("[MQTT] feed message on %s has no column", msg.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), feedTimeout)
	defer cancel()
	if err := f.loop.Do(ctx, m.Apply); err != nil {
		log.Printf("[MQTT] applying %s %q: %v", actionName(m.Action), m.Column, err)
		return
	}
	log.Printf("[MQTT] applied %s %q (%d values)", actionName(m.Action), m.Column, len(m.Values))
}

func actionName(a string) string {
	if a == "" {
		return FeedSet
	}
	return a
}

// IsConnected returns true if the MQTT client is connected
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isConnected
}

func (f *Feed) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isConnected = connected
}

// Client returns the underlying MQTT client, shared with the publisher.
func (f *Feed) Client() mqtt.Client {
	return f.client
}

// Disconnect gracefully closes the MQTT connection
func (f *Feed) Disconnect() {
	if f.client != nil && f.client.IsConnected() {
		log.Println("[MQTT] disconnecting...")
		f.client.Disconnect(250)
		f.setConnected(false)
	}
}
