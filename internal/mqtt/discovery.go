package mqtt

import (
	"encoding/json"
	"fmt"
)

// DeviceInfo groups entities under one device in Home Assistant.
type DeviceInfo struct {
	Identifiers  string `json:"identifiers"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// Descriptor announces one entity's shape to Home Assistant. Component and
// ObjectID select the config topic and are not part of the payload.
type Descriptor struct {
	Component string `json:"-"`
	ObjectID  string `json:"-"`

	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	DeviceClass       string     `json:"device_class,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	StateTopic        string     `json:"state_topic"`
	CommandTopic      string     `json:"command_topic,omitempty"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Unit              string     `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string     `json:"value_template,omitempty"`
	PayloadOn         any        `json:"payload_on,omitempty"`
	PayloadOff        any        `json:"payload_off,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// Home Assistant component kinds used by the devices.
const (
	ComponentCover        = "cover"
	ComponentBinarySensor = "binary_sensor"
	ComponentSensor       = "sensor"
	ComponentSwitch       = "switch"
)

// DescriptorMessage encodes d as a retained discovery config message.
func (t Topics) DescriptorMessage(d Descriptor) (Message, error) {
	if d.Component == "" || d.ObjectID == "" {
		return Message{}, fmt.Errorf("descriptor %q: component and object id required", d.Name)
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return Message{}, fmt.Errorf("encode descriptor %s: %w", d.ObjectID, err)
	}
	return Message{
		Topic:    t.Config(d.Component, d.ObjectID),
		Payload:  payload,
		QoS:      1,
		Retained: true,
	}, nil
}
