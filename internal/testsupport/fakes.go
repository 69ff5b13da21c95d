package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"clickstream/internal/device"
	"clickstream/internal/events"
	"clickstream/internal/transport"
)

// ErrOffline is returned by a failing FakeTransport.
var ErrOffline = errors.New("network unreachable")

// FakeTransport records requests and fails on demand.
type FakeTransport struct {
	mu       sync.Mutex
	requests []*transport.Request
	failNext int
	failing  bool
	hook     func(*transport.Request)
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) Send(_ context.Context, req *transport.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failing || f.failNext > 0
	if f.failNext > 0 {
		f.failNext--
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if fail {
		return ErrOffline
	}
	return nil
}

// SetFailing makes every following request fail until reset.
func (f *FakeTransport) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// FailNext makes the next n requests fail.
func (f *FakeTransport) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// OnSend runs hook for each request before the result is returned.
func (f *FakeTransport) OnSend(hook func(*transport.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Requests returns a copy of the recorded requests.
func (f *FakeTransport) Requests() []*transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transport.Request(nil), f.requests...)
}

// Reset forgets recorded requests and failure settings.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
	f.failNext = 0
	f.failing = false
}

// SentEvents decodes every record of every recorded request, in order.
func (f *FakeTransport) SentEvents(t *testing.T) []events.AnalyticsEvent {
	t.Helper()
	var all []events.AnalyticsEvent
	for _, req := range f.Requests() {
		all = append(all, DecodeBody(t, req)...)
	}
	return all
}

// SentTypes returns the event types of SentEvents.
func (f *FakeTransport) SentTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, ev := range f.SentEvents(t) {
		types = append(types, ev.EventType)
	}
	return types
}

// DecodeBody decodes the record array of req.
func DecodeBody(t *testing.T, req *transport.Request) []events.AnalyticsEvent {
	t.Helper()
	var records []events.AnalyticsEvent
	require.NoError(t, json.Unmarshal([]byte(req.Body), &records), "body: %s", req.Body)
	return records
}

// SequenceIDs returns the event_bundle_sequence_id of each recorded request.
func (f *FakeTransport) SequenceIDs(t *testing.T) []string {
	t.Helper()
	var ids []string
	for _, req := range f.Requests() {
		u, err := url.Parse(req.URL)
		require.NoError(t, err)
		ids = append(ids, u.Query().Get(transport.ParamSequenceID))
	}
	return ids
}

// Device is a fixed device source.
func Device() device.Static {
	return device.Static{
		System: device.SystemInfo{
			Platform:     "ios",
			System:       "iOS 17.2",
			Version:      "8.0.44",
			SDKVersion:   "3.2.5",
			Brand:        "Apple",
			Model:        "iPhone 15",
			Language:     "en",
			ScreenHeight: 852,
			ScreenWidth:  393,
		},
		Account: device.AccountInfo{AppID: "wx123", Version: "1.4.0"},
		Network: "wifi",
	}
}
