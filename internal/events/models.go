package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// unsetMarker is the type of Unset.
type unsetMarker struct{}

// Unset removes a key during Merge. Preset events use it to drop
// enricher supplied keys they must not carry.
var Unset = unsetMarker{}

// Attribute is a single named event attribute.
type Attribute struct {
	Name  string
	Value any
}

// Attributes is an insertion ordered attribute list. Validation caps
// depend on the order attributes were supplied in, so a map is not used.
type Attributes []Attribute

// Get returns the value stored under name.
func (a Attributes) Get(name string) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing attribute in place or appends a new one.
func (a *Attributes) Set(name string, value any) {
	for i := range *a {
		if (*a)[i].Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: value})
}

// Delete removes name if present, keeping the order of the rest.
func (a *Attributes) Delete(name string) {
	for i := range *a {
		if (*a)[i].Name == name {
			*a = append((*a)[:i], (*a)[i+1:]...)
			return
		}
	}
}

// Merge combines layers left to right. Later layers win on collision and
// an Unset value removes the key.
func Merge(layers ...Attributes) Attributes {
	merged := Attributes{}
	for _, layer := range layers {
		for _, attr := range layer {
			if attr.Value == Unset {
				merged.Delete(attr.Name)
				continue
			}
			merged.Set(attr.Name, attr.Value)
		}
	}
	return merged
}

// ordered copies the attributes into an insertion ordered map, skipping
// Unset markers.
func (a Attributes) ordered() *orderedmap.OrderedMap[string, any] {
	om := orderedmap.New[string, any]()
	for _, attr := range a {
		if attr.Value == Unset {
			continue
		}
		om.Set(attr.Name, attr.Value)
	}
	return om
}

// MarshalJSON encodes the attributes as an object in insertion order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(a.ordered())
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes an object keeping key order. Numbers are kept as
// json.Number so integers survive a round trip.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*a = nil
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("attributes must be a JSON object, got %.20s", trimmed)
	}

	om := orderedmap.New[string, json.RawMessage]()
	if err := om.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}

	out := make(Attributes, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		dec := json.NewDecoder(bytes.NewReader(pair.Value))
		dec.UseNumber()
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode attribute %s: %w", pair.Key, err)
		}
		out = append(out, Attribute{Name: pair.Key, Value: value})
	}
	*a = out
	return nil
}

// Item describes a product or content item attached to an event.
type Item struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	LocationID   string `json:"location_id,omitempty"`
	Brand        string `json:"brand,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Price        any    `json:"price,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	CreativeName string `json:"creative_name,omitempty"`
	CreativeSlot string `json:"creative_slot,omitempty"`
	Category     string `json:"category,omitempty"`
	Category2    string `json:"category2,omitempty"`
	Category3    string `json:"category3,omitempty"`
	Category4    string `json:"category4,omitempty"`
	Category5    string `json:"category5,omitempty"`
}

// Event is a raw event as supplied by the caller, before validation and
// enrichment.
type Event struct {
	Name       string
	Attributes Attributes
	Items      []Item
}

// UserAttribute is a user attribute value with the time it was set.
type UserAttribute struct {
	Value        any   `json:"value"`
	SetTimestamp int64 `json:"set_timestamp"`
}

// UserAttributes maps user attribute names to their values.
type UserAttributes map[string]UserAttribute

// AnalyticsEvent is the canonical record sent over the wire. It is not
// mutated after construction.
type AnalyticsEvent struct {
	AppID            string         `json:"app_id"`
	UniqueID         string         `json:"unique_id"`
	DeviceID         string         `json:"device_id"`
	EventType        string         `json:"event_type"`
	EventID          string         `json:"event_id"`
	Timestamp        int64          `json:"timestamp"`
	Platform         string         `json:"platform"`
	OSName           string         `json:"os_name"`
	OSVersion        string         `json:"os_version"`
	WeChatVersion    string         `json:"wechat_version"`
	WeChatSDKVersion string         `json:"wechat_sdk_version"`
	Brand            string         `json:"brand"`
	Model            string         `json:"model"`
	SystemLanguage   string         `json:"system_language"`
	ScreenHeight     int            `json:"screen_height"`
	ScreenWidth      int            `json:"screen_width"`
	ZoneOffset       int64          `json:"zone_offset"`
	NetworkType      string         `json:"network_type,omitempty"`
	SDKVersion       string         `json:"sdk_version"`
	SDKName          string         `json:"sdk_name"`
	AppVersion       string         `json:"app_version"`
	AppPackageName   string         `json:"app_package_name"`
	User             UserAttributes `json:"user"`
	Attributes       Attributes     `json:"attributes"`
	Items            []Item         `json:"items,omitempty"`
}

// ErrorEvent builds the diagnostic event reporting a validation failure.
func ErrorEvent(code int, message string) Event {
	return Event{
		Name: TypeError,
		Attributes: Attributes{
			{Name: AttrErrorCode, Value: code},
			{Name: AttrErrorMessage, Value: message},
		},
	}
}
