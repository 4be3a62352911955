package choropleth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	feed, err := InitMQTT(DefaultConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, feed)
}

func TestInitMQTT_NoFeedTopic(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := DefaultConfig()
	config.MQTT.Broker = "tcp://localhost:1883"
	config.MQTT.FeedTopic = ""

	_, err := InitMQTT(config, nil)
	assert.Error(t, err)
}

func TestFeed_IsConnected(t *testing.T) {
	feed := &Feed{}
	assert.False(t, feed.IsConnected(), "New feed should not be connected")

	feed.setConnected(true)
	assert.True(t, feed.IsConnected())

	feed.setConnected(false)
	assert.False(t, feed.IsConnected())
}

// connectedFeed returns a feed over a mock client, connected and
// subscribed, applying messages to a loaded widget.
func connectedFeed(t *testing.T, opts ...Option) (*Feed, *MockClient, *Loop) {
	t.Helper()
	w := loadedWidget(t, opts...)
	loop := startedLoop(t, w)

	client := NewMockClient()
	feed := newFeedWithClient(client, w.Config(), loop)
	client.SetOnConnect(feed.onConnect)
	require.NoError(t, client.Connect().Error())
	return feed, client, loop
}

func TestFeed_SubscribesOnConnect(t *testing.T) {
	feed, client, _ := connectedFeed(t)
	assert.True(t, feed.IsConnected())
	assert.True(t, client.Subscribed("choromap/values"))
}

func TestFeed_AppliesMessages(t *testing.T) {
	_, client, loop := connectedFeed(t)
	topic := "choromap/values"

	tests := []struct {
		name        string
		payload     string
		wantColumn  string
		wantColumns []string
	}{
		{
			name:        "set with default shows the column",
			payload:     `{"column":"area","values":{"A":1,"B":null},"default":7}`,
			wantColumn:  "area",
			wantColumns: []string{"name", "pop", "gdp", "area"},
		},
		{
			name:        "silent set keeps the shown column",
			payload:     `{"action":"set","column":"rain","values":{"C":2},"silent":true}`,
			wantColumn:  "area",
			wantColumns: []string{"name", "pop", "gdp", "area", "rain"},
		},
		{
			name:        "show",
			payload:     `{"action":"show","column":"gdp"}`,
			wantColumn:  "gdp",
			wantColumns: []string{"name", "pop", "gdp", "area", "rain"},
		},
		{
			name:        "unregister",
			payload:     `{"action":"unregister","column":"rain"}`,
			wantColumn:  "gdp",
			wantColumns: []string{"name", "pop", "gdp", "area"},
		},
		{
			name:        "remove the shown column",
			payload:     `{"action":"remove","column":"gdp"}`,
			wantColumn:  "pop",
			wantColumns: []string{"name", "pop", "area"},
		},
		{
			name:        "bad payload is ignored",
			payload:     `{"column":`,
			wantColumn:  "pop",
			wantColumns: []string{"name", "pop", "area"},
		},
		{
			name:        "message without column is ignored",
			payload:     `{"values":{"A":1}}`,
			wantColumn:  "pop",
			wantColumns: []string{"name", "pop", "area"},
		},
		{
			name:        "unknown action is ignored",
			payload:     `{"action":"explode","column":"pop"}`,
			wantColumn:  "pop",
			wantColumns: []string{"name", "pop", "area"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, client.Deliver(topic, []byte(tt.payload)))
			st, err := loop.State(t.Context())
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumn, st.Column)
			assert.Equal(t, tt.wantColumns, st.Columns)
		})
	}
}

func TestFeed_DefaultFillsUncoveredRegions(t *testing.T) {
	_, client, loop := connectedFeed(t)
	require.True(t, client.Deliver("choromap/values", []byte(`{"column":"area","values":{"A":1,"B":null},"default":7}`)))

	var values []Value
	require.NoError(t, loop.Do(t.Context(), func(w *Widget) error {
		values = w.Store().Values("area")
		return nil
	}))
	assert.Equal(t, []Value{Num(1), Absent, Num(7)}, values)
}

func TestFeedMessage_Apply(t *testing.T) {
	w := loadedWidget(t)

	err := FeedMessage{Action: FeedShow, Column: "missing"}.Apply(w)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	err = FeedMessage{Action: "bogus", Column: "pop"}.Apply(w)
	assert.Error(t, err)

	require.NoError(t, FeedMessage{Column: "pop", Values: map[string]Value{"A": Num(1)}}.Apply(w))
	assert.Equal(t, []Value{Num(1), Absent, Absent}, w.Store().Values("pop"))
}

func TestFeed_ConnectionLost(t *testing.T) {
	feed, client, _ := connectedFeed(t)
	feed.onConnectionLost(client, assert.AnError)
	assert.False(t, feed.IsConnected())
}

func TestFeed_Disconnect(t *testing.T) {
	feed, client, _ := connectedFeed(t)
	feed.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, feed.IsConnected())
	assert.Same(t, client, feed.Client())
}
