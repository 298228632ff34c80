// Package hub fans session state out to connected websocket clients and hands
// the messages they send back to a Handler.
package hub

// Message is one outbound websocket text frame.
type Message struct {
	Data []byte

	// Topic names state that the next message on the same topic replaces,
	// such as a session snapshot. A client that falls behind writes only the
	// newest queued message per topic. Messages without a topic are all
	// written.
	Topic string
}

// Text returns a message that is always delivered.
func Text(data []byte) Message {
	return Message{Data: data}
}

// State returns a message superseded by later messages on topic.
func State(topic string, data []byte) Message {
	return Message{Data: data, Topic: topic}
}

// Handler receives text messages read from a client. It runs on the
// client's read goroutine.
type Handler func(c *Client, data []byte)
