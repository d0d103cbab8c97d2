package bridge

import "github.com/sweeney/home-sensors/internal/mqtt"

func towerTopic(t mqtt.Topics, id string) string  { return t.Path("acurite-tower", id) }
func remoteTopic(t mqtt.Topics, id string) string { return t.Path("generic-remote", id) }
func buttonTopic(t mqtt.Topics, id string) string { return t.Path("button", id) }

func towerDescriptors(t mqtt.Topics, id string) []mqtt.Descriptor {
	uid := "acurite-tower-" + id
	device := mqtt.DeviceInfo{
		Identifiers:  uid,
		Name:         "Acurite Thermometer " + id,
		Model:        ModelAcuriteTower,
		Manufacturer: "Acurite",
	}
	state := towerTopic(t, id)
	return []mqtt.Descriptor{
		{
			Component:     mqtt.ComponentSensor,
			ObjectID:      uid + "-temperature",
			Name:          "Temperature",
			UniqueID:      uid + "-temperature",
			Icon:          "mdi:thermometer",
			DeviceClass:   "temperature",
			StateTopic:    state,
			StateClass:    "measurement",
			Unit:          "°C",
			ValueTemplate: "{{ value_json.temperature_C }}",
			Device:        device,
		},
		{
			Component:     mqtt.ComponentSensor,
			ObjectID:      uid + "-humidity",
			Name:          "Humidity",
			UniqueID:      uid + "-humidity",
			Icon:          "mdi:cloud-percent",
			DeviceClass:   "humidity",
			StateTopic:    state,
			StateClass:    "measurement",
			Unit:          "%",
			ValueTemplate: "{{ value_json.humidity }}",
			Device:        device,
		},
		{
			Component:     mqtt.ComponentBinarySensor,
			ObjectID:      uid + "-battery",
			Name:          "Battery",
			UniqueID:      uid + "-battery",
			Icon:          "mdi:battery-charging",
			DeviceClass:   "battery",
			StateTopic:    state,
			PayloadOn:     "0", // battery low
			PayloadOff:    "1",
			ValueTemplate: "{{ value_json.battery_ok }}",
			Device:        device,
		},
	}
}

func remoteDescriptors(t mqtt.Topics, id string) []mqtt.Descriptor {
	uid := "door-sensor-" + id
	return []mqtt.Descriptor{{
		Component:     mqtt.ComponentBinarySensor,
		ObjectID:      uid,
		Name:          "Door",
		UniqueID:      uid,
		DeviceClass:   "door",
		StateTopic:    remoteTopic(t, id),
		PayloadOn:     DoorOpenCode,
		PayloadOff:    DoorClosedCode,
		ValueTemplate: "{{ value_json.cmd }}",
		Device: mqtt.DeviceInfo{
			Identifiers: uid,
			Name:        "Door Sensor " + id,
			Model:       ModelGenericRemote,
		},
	}}
}

func buttonDescriptors(t mqtt.Topics, id string) []mqtt.Descriptor {
	uid := "button-" + id
	return []mqtt.Descriptor{{
		Component:     mqtt.ComponentBinarySensor,
		ObjectID:      uid,
		Name:          "Button",
		UniqueID:      uid,
		StateTopic:    buttonTopic(t, id),
		PayloadOn:     true,
		PayloadOff:    false,
		ValueTemplate: "{{ value_json.press }}",
		Device: mqtt.DeviceInfo{
			Identifiers: uid,
			Name:        "Button " + id,
			Model:       "Button",
		},
	}}
}
