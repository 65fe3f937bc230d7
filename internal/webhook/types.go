package webhook

import (
	"encoding/json"
	"errors"
)

// GitHub delivery headers.
const (
	EventHeader    = "X-GitHub-Event"
	DeliveryHeader = "X-GitHub-Delivery"
)

// Event types the router distinguishes.
const (
	EventPing = "ping"
	EventPush = "push"
)

const unknownPusher = "unknown"

// PongResponse answers a ping delivery.
type PongResponse struct {
	Status string `json:"status"`
}

// IgnoredResponse acknowledges an event type the listener does not act on.
type IgnoredResponse struct {
	Status string `json:"status"`
	Event  string `json:"event"`
}

// SkippedResponse acknowledges a push to a branch other than the watched one.
type SkippedResponse struct {
	Status string `json:"status"`
	Ref    string `json:"ref"`
}

// ErrorResponse is the JSON body for rejected POSTs.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PushEvent holds the fields of a push payload the listener cares about.
type PushEvent struct {
	Ref     string
	After   string
	Pusher  string
	Commits int
}

var errNotObject = errors.New("payload is not a JSON object")

// parsePushEvent decodes a push payload leniently: the body must be a JSON
// object, but missing or wrongly typed fields fall back to defaults.
func parsePushEvent(body []byte) (PushEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return PushEvent{}, err
	}
	// "null" decodes into a nil map without error.
	if fields == nil {
		return PushEvent{}, errNotObject
	}

	ev := PushEvent{Pusher: unknownPusher}
	decodeField(fields, "ref", &ev.Ref)
	decodeField(fields, "after", &ev.After)

	// A present string name is kept as sent, even when empty.
	var pusher struct {
		Name *string `json:"name"`
	}
	if decodeField(fields, "pusher", &pusher) && pusher.Name != nil {
		ev.Pusher = *pusher.Name
	}

	var commits []json.RawMessage
	if decodeField(fields, "commits", &commits) {
		ev.Commits = len(commits)
	}
	return ev, nil
}

// decodeField unmarshals fields[key] into dst, leaving dst untouched when
// the key is absent or has the wrong type.
func decodeField(fields map[string]json.RawMessage, key string, dst any) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
