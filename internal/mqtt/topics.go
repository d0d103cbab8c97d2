package mqtt

import "strings"

// DefaultDiscoveryPrefix is the Home Assistant discovery prefix.
const DefaultDiscoveryPrefix = "homeassistant"

// Availability payloads.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Topics builds topic names under a discovery prefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, or the default prefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return Topics{Prefix: prefix}
}

// Path joins parts under the prefix.
func (t Topics) Path(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

// Register is the topic Home Assistant uses to ask devices to re-announce.
func (t Topics) Register() string {
	return t.Path("register")
}

// Config is the discovery config topic for one entity.
func (t Topics) Config(component, objectID string) string {
	return t.Path(component, objectID, "config")
}

// Availability is the online/offline topic for a node.
func (t Topics) Availability(node string) string {
	return t.Path("availability", Normalize(node))
}

// Normalize turns a display name into a topic segment: lower case with
// spaces replaced by underscores.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Match reports whether topic matches the subscription filter, honouring the
// single-level (+) and multi-level (#) wildcards.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
