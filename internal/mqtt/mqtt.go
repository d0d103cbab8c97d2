// Package mqtt connects devices to the broker: outbound reports, Home
// Assistant discovery, inbound command dispatch and offline buffering.
package mqtt

import (
	"encoding/json"
	"fmt"
)

// Message is a single publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Handler receives messages for a subscription.
type Handler func(topic string, payload []byte)

// Publisher delivers messages to the broker.
type Publisher interface {
	// Publish hands msg to the broker connection. Returns error if the
	// message could not be queued (should not crash the process).
	Publish(msg Message) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Client is a Publisher that can also subscribe.
type Client interface {
	Publisher
	ConnectionStatus

	// Subscribe registers h for messages matching filter. Subscriptions
	// survive reconnects.
	Subscribe(filter string, h Handler) error
}

// JSON builds a non-retained QoS 0 message carrying v encoded as JSON.
func JSON(topic string, v any) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Message{Topic: topic, Payload: payload}, nil
}

// Text builds a non-retained QoS 0 message with a plain string payload.
func Text(topic, payload string) Message {
	return Message{Topic: topic, Payload: []byte(payload)}
}
