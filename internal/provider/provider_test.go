package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"clickstream/internal/clock"
	"clickstream/internal/config"
	"clickstream/internal/device"
	"clickstream/internal/events"
	"clickstream/internal/identity"
	"clickstream/internal/lifecycle"
	"clickstream/internal/logging"
	"clickstream/internal/provider"
	"clickstream/internal/recorder"
	"clickstream/internal/runloop"
	"clickstream/internal/screen"
	"clickstream/internal/storage"
	"clickstream/internal/testsupport"
	"clickstream/internal/validator"
)

var start = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

var (
	homePage   = screen.Page{ID: "page-1", Route: "pages/home/index", Title: "Home"}
	detailPage = screen.Page{ID: "page-2", Route: "pages/detail/index", Options: map[string]string{"id": "7"}, Title: "Detail"}
)

type harness struct {
	p         *provider.Provider
	store     *storage.MemoryStore
	transport *testsupport.FakeTransport
	clock     *clock.FakeClock
	screens   *screen.Stack
	hub       *lifecycle.Hub
}

type setup struct {
	cfg    *config.Config
	device device.Source
}

type option func(*setup)

func withConfig(fn func(*config.Config)) option {
	return func(s *setup) { fn(s.cfg) }
}

func withDevice(src device.Source) option {
	return func(s *setup) { s.device = src }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	s := &setup{cfg: config.Defaults(), device: testsupport.Device()}
	s.cfg.AppID = "shop"
	s.cfg.Endpoint = "https://collect.example.com/collect"
	for _, opt := range opts {
		opt(s)
	}

	h := &harness{
		store:     storage.NewMemoryStore(),
		transport: testsupport.NewFakeTransport(),
		clock:     clock.Fake(start),
		screens:   screen.NewStack(),
		hub:       lifecycle.NewHub(),
	}
	ids := 0
	p, err := provider.New(s.cfg, provider.Deps{
		Store:     h.store,
		Transport: h.transport,
		Device:    s.device,
		Screens:   h.screens,
		Lifecycle: h.hub,
		Clock:     h.clock,
		Loop:      runloop.NewInline(),
		Logger:    logging.NewLogger(logging.Config{Quiet: true}),
		NewEventID: func() string {
			ids++
			return fmt.Sprintf("evt-%d", ids)
		},
		RetryDelay: func() time.Duration { return 5 * time.Second },
	})
	require.NoError(t, err)
	h.p = p
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return h
}

func (h *harness) state(t *testing.T) provider.State {
	t.Helper()
	state, err := h.p.State(context.Background())
	require.NoError(t, err)
	return state
}

func attr(t *testing.T, ev events.AnalyticsEvent, name string) any {
	t.Helper()
	value, ok := ev.Attributes.Get(name)
	require.True(t, ok, "attribute %s missing from %s", name, ev.EventType)
	return value
}

func names(attrs events.Attributes) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a.Name)
	}
	return out
}

type brokenDevice struct{ device.Static }

func (brokenDevice) SystemInfo() (device.SystemInfo, error) {
	return device.SystemInfo{}, errors.New("system info unavailable")
}

func TestNew(t *testing.T) {
	deps := func() provider.Deps {
		return provider.Deps{
			Store:     storage.NewMemoryStore(),
			Transport: testsupport.NewFakeTransport(),
			Device:    testsupport.Device(),
			Loop:      runloop.NewInline(),
		}
	}
	valid := func() *config.Config {
		cfg := config.Defaults()
		cfg.AppID = "shop"
		cfg.Endpoint = "https://collect.example.com/collect"
		return cfg
	}

	t.Run("rejects an invalid configuration", func(t *testing.T) {
		_, err := provider.New(config.Defaults(), deps())
		assert.ErrorIs(t, err, config.ErrMissingAppID)
	})

	t.Run("requires a transport", func(t *testing.T) {
		d := deps()
		d.Transport = nil
		_, err := provider.New(valid(), d)
		assert.ErrorIs(t, err, provider.ErrMissingTransport)
	})

	t.Run("fails without device metadata", func(t *testing.T) {
		d := deps()
		d.Device = brokenDevice{}
		_, err := provider.New(valid(), d)
		assert.ErrorContains(t, err, "system info unavailable")
	})

	t.Run("runs on its own loop when none is given", func(t *testing.T) {
		d := deps()
		d.Loop = nil
		p, err := provider.New(valid(), d)
		require.NoError(t, err)

		state, err := p.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "shop", state.Config.AppID)
		assert.Equal(t, "iPhone 15", state.Device.Model)
		require.NoError(t, p.Shutdown(context.Background()))
		require.NoError(t, p.Shutdown(context.Background()))
	})
}

func TestRecordBuildsCanonicalRecord(t *testing.T) {
	h := newHarness(t)
	h.screens.Push(homePage)
	h.hub.Foreground()
	h.transport.Reset()

	h.p.Record(events.Event{
		Name:       "button_click",
		Attributes: events.Attributes{{Name: "color", Value: "red"}},
	})

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	ev := sent[0]
	state := h.state(t)

	assert.Equal(t, "shop", ev.AppID)
	assert.Equal(t, "button_click", ev.EventType)
	assert.Equal(t, events.DefaultPlatform, ev.Platform)
	assert.Equal(t, state.User.UniqueID, ev.UniqueID)
	assert.Equal(t, state.Device.DeviceID, ev.DeviceID)
	assert.Equal(t, start.UnixMilli(), ev.Timestamp)
	assert.Equal(t, "ios", ev.OSName)
	assert.Equal(t, "iPhone 15", ev.Model)
	assert.Equal(t, "wifi", ev.NetworkType)
	assert.Equal(t, "wx123", ev.AppPackageName)
	assert.Equal(t, events.SDKName, ev.SDKName)
	assert.Nil(t, ev.Items)
	assert.Contains(t, ev.User, events.AttrUserFirstTouchStamp)

	assert.Equal(t, []string{
		events.AttrSessionID,
		events.AttrSessionStartTimestamp,
		events.AttrSessionNumber,
		events.AttrSessionDuration,
		events.AttrScreenID,
		events.AttrScreenRoute,
		events.AttrPreviousScreenID,
		events.AttrPreviousScreenRoute,
		"color",
	}, names(ev.Attributes))
	assert.Equal(t, state.Session.ID, attr(t, ev, events.AttrSessionID))
	assert.Equal(t, json.Number("1"), attr(t, ev, events.AttrSessionNumber))
	assert.Equal(t, "page-1", attr(t, ev, events.AttrScreenID))
	assert.Equal(t, "red", attr(t, ev, "color"))
}

func TestEventAttributesOverrideEnrichedOnes(t *testing.T) {
	h := newHarness(t)
	h.screens.Push(homePage)

	h.p.Record(events.Event{
		Name:       "custom_screen",
		Attributes: events.Attributes{{Name: events.AttrScreenID, Value: "override"}},
	})

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "override", attr(t, sent[0], events.AttrScreenID))
}

func TestRecordValidation(t *testing.T) {
	t.Run("drops an over long attribute value and reports it", func(t *testing.T) {
		h := newHarness(t)

		h.p.Record(events.Event{
			Name: "button_click",
			Attributes: events.Attributes{
				{Name: "note", Value: strings.Repeat("n", 2000)},
				{Name: "color", Value: "red"},
			},
		})

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 2)
		assert.Equal(t, "button_click", sent[0].EventType)
		_, hasNote := sent[0].Attributes.Get("note")
		assert.False(t, hasNote)
		assert.Equal(t, "red", attr(t, sent[0], "color"))

		assert.Equal(t, events.TypeError, sent[1].EventType)
		assert.Equal(t, json.Number(fmt.Sprint(int(validator.AttributeValueLengthExceed))), attr(t, sent[1], events.AttrErrorCode))
	})

	t.Run("an invalid name sends only the error event", func(t *testing.T) {
		h := newHarness(t)

		h.p.Record(events.Event{Name: "1st-click"})

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 1)
		assert.Equal(t, events.TypeError, sent[0].EventType)
		assert.Equal(t, json.Number(fmt.Sprint(int(validator.EventNameInvalid))), attr(t, sent[0], events.AttrErrorCode))
	})

	t.Run("null values are skipped silently", func(t *testing.T) {
		h := newHarness(t)

		h.p.Record(events.Event{
			Name:       "button_click",
			Attributes: events.Attributes{{Name: "missing", Value: nil}, {Name: "color", Value: "red"}},
		})

		assert.Equal(t, []string{"button_click"}, h.transport.SentTypes(t))
		_, ok := h.transport.SentEvents(t)[0].Attributes.Get("missing")
		assert.False(t, ok)
	})

	t.Run("the last error wins", func(t *testing.T) {
		h := newHarness(t)

		h.p.Record(events.Event{
			Name: "button_click",
			Attributes: events.Attributes{
				{Name: "bad-name", Value: "x"},
				{Name: "note", Value: strings.Repeat("n", 2000)},
			},
		})

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 2)
		assert.Equal(t, json.Number(fmt.Sprint(int(validator.AttributeValueLengthExceed))), attr(t, sent[1], events.AttrErrorCode))
	})
}

func TestRecordNonFiniteNumbers(t *testing.T) {
	for name, value := range map[string]float64{"NaN": math.NaN(), "+Inf": math.Inf(1), "-Inf": math.Inf(-1)} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)

			h.p.Record(events.Event{
				Name: "purchase",
				Attributes: events.Attributes{
					{Name: "price", Value: value},
					{Name: "sku", Value: "a"},
				},
			})

			sent := h.transport.SentEvents(t)
			require.Len(t, sent, 2)
			assert.Equal(t, "purchase", sent[0].EventType)
			_, hasPrice := sent[0].Attributes.Get("price")
			assert.False(t, hasPrice)
			assert.Equal(t, "a", attr(t, sent[0], "sku"))

			assert.Equal(t, events.TypeError, sent[1].EventType)
			assert.Equal(t, json.Number(fmt.Sprint(int(validator.AttributeValueLengthExceed))), attr(t, sent[1], events.AttrErrorCode))
		})
	}
}

func TestRecordCapsAttributes(t *testing.T) {
	h := newHarness(t)

	rapid.Check(t, func(rt *rapid.T) {
		h.transport.Reset()
		n := rapid.IntRange(0, 700).Draw(rt, "attributes")

		attrs := make(events.Attributes, 0, n)
		for i := 0; i < n; i++ {
			attrs = append(attrs, events.Attribute{Name: fmt.Sprintf("attr_%d", i), Value: i})
		}
		h.p.Record(events.Event{Name: "bulk", Attributes: attrs})

		sent := h.transport.SentEvents(t)
		custom := 0
		for _, a := range sent[0].Attributes {
			if strings.HasPrefix(a.Name, "attr_") {
				custom++
			}
		}
		if custom > events.MaxCustomAttributes {
			rt.Fatalf("admitted %d attributes", custom)
		}
		if custom != min(n, events.MaxCustomAttributes) {
			rt.Fatalf("admitted %d of %d attributes", custom, n)
		}
		if len(sent[0].Attributes) > events.MaxAttributes {
			rt.Fatalf("record carries %d attributes", len(sent[0].Attributes))
		}
		if wantError := n > events.MaxCustomAttributes; wantError != (len(sent) == 2) {
			rt.Fatalf("got %d records for %d attributes", len(sent), n)
		}
	})
}

func TestRecordItems(t *testing.T) {
	long := events.Item{ID: "sku-long", Name: strings.Repeat("n", 300)}

	t.Run("over long items are dropped and the cap applies", func(t *testing.T) {
		h := newHarness(t)
		items := make([]events.Item, 0, 102)
		for i := 0; i < 102; i++ {
			items = append(items, events.Item{ID: fmt.Sprintf("sku-%d", i)})
		}
		items[1] = long

		h.p.Record(events.Event{Name: "purchase", Items: items})

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 2)
		require.Len(t, sent[0].Items, events.MaxItems)
		assert.Equal(t, "sku-0", sent[0].Items[0].ID)
		assert.Equal(t, "sku-2", sent[0].Items[1].ID)
		assert.Equal(t, json.Number(fmt.Sprint(int(validator.ItemSizeExceed))), attr(t, sent[1], events.AttrErrorCode))
	})

	t.Run("items are omitted when none is valid", func(t *testing.T) {
		h := newHarness(t)

		h.p.Record(events.Event{Name: "purchase", Items: []events.Item{long}})

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 2)
		assert.Nil(t, sent[0].Items)
		assert.NotContains(t, h.transport.Requests()[0].Body, `"items"`)
		assert.Equal(t, json.Number(fmt.Sprint(int(validator.ItemValueLengthExceed))), attr(t, sent[1], events.AttrErrorCode))
	})
}

func TestSetUserID(t *testing.T) {
	h := newHarness(t)
	original := h.state(t).User.UniqueID

	h.p.SetUserID(nil)
	h.p.SetUserID(config.Ptr("abc"))

	var persisted identity.Info
	found, err := storage.GetJSON(h.store, storage.KeyUserInfo, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, original, persisted.UniqueID)
	assert.Equal(t, "abc", persisted.Attributes[events.AttrUserID].Value)

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	assert.Equal(t, events.TypeProfileSet, sent[0].EventType)
	assert.Equal(t, persisted.UniqueID, sent[0].UniqueID)
	assert.Equal(t, "abc", sent[0].User[events.AttrUserID].Value)
}

func TestSetUserIDTooLong(t *testing.T) {
	h := newHarness(t)

	h.p.SetUserID(config.Ptr(strings.Repeat("u", 300)))

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	assert.Equal(t, events.TypeError, sent[0].EventType)
	assert.Equal(t, json.Number(fmt.Sprint(int(validator.UserAttributeValueLengthExceed))), attr(t, sent[0], events.AttrErrorCode))
	assert.NotContains(t, h.state(t).User.Attributes, events.AttrUserID)
}

func TestSetUserAttributes(t *testing.T) {
	h := newHarness(t)

	h.p.SetUserAttributes(events.Attributes{{Name: "plan", Value: "pro"}})
	assert.Equal(t, []string{events.TypeProfileSet}, h.transport.SentTypes(t))
	assert.Equal(t, "pro", h.state(t).User.Attributes["plan"].Value)

	h.transport.Reset()
	h.p.SetUserAttributes(events.Attributes{{Name: "plan", Value: nil}})
	assert.Equal(t, []string{events.TypeProfileSet}, h.transport.SentTypes(t))
	assert.NotContains(t, h.state(t).User.Attributes, "plan")

	h.transport.Reset()
	h.p.SetUserAttributes(events.Attributes{{Name: "bad-name", Value: "x"}})
	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	assert.Equal(t, json.Number(fmt.Sprint(int(validator.UserAttributeNameInvalid))), attr(t, sent[0], events.AttrErrorCode))
}

func TestForegroundSessions(t *testing.T) {
	t.Run("foregrounds ten minutes apart share a session", func(t *testing.T) {
		h := newHarness(t)

		h.hub.Foreground()
		first := h.state(t).Session
		h.clock.Advance(10 * time.Minute)
		h.hub.Foreground()
		second := h.state(t).Session

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, second.Count)
		assert.Equal(t, []string{
			events.TypeSessionStart,
			events.TypeFirstOpen,
			events.TypeAppStart,
			events.TypeAppStart,
		}, h.transport.SentTypes(t))
	})

	t.Run("foregrounds forty minutes apart start two sessions", func(t *testing.T) {
		h := newHarness(t)

		h.hub.Foreground()
		first := h.state(t).Session
		h.clock.Advance(40 * time.Minute)
		h.hub.Foreground()
		second := h.state(t).Session

		assert.Equal(t, 1, first.Count)
		assert.Equal(t, 2, second.Count)
		assert.NotEqual(t, first.ID, second.ID)

		var starts []events.AnalyticsEvent
		for _, ev := range h.transport.SentEvents(t) {
			if ev.EventType == events.TypeSessionStart {
				starts = append(starts, ev)
			}
		}
		require.Len(t, starts, 2)
		assert.Equal(t, json.Number("2"), attr(t, starts[1], events.AttrSessionNumber))
		assert.Equal(t, second.ID, attr(t, starts[1], events.AttrSessionID))
	})

	t.Run("app start reports the first foreground only", func(t *testing.T) {
		h := newHarness(t)

		h.hub.Foreground()
		h.clock.Advance(time.Second)
		h.hub.Foreground()

		var flags []any
		for _, ev := range h.transport.SentEvents(t) {
			if ev.EventType == events.TypeAppStart {
				flags = append(flags, attr(t, ev, events.AttrIsFirstTime))
			}
		}
		assert.Equal(t, []any{true, false}, flags)
	})

	t.Run("repeated signals are debounced", func(t *testing.T) {
		h := newHarness(t)

		h.hub.Foreground()
		h.clock.Advance(50 * time.Millisecond)
		h.hub.Foreground()

		assert.Equal(t, []string{events.TypeSessionStart, events.TypeFirstOpen, events.TypeAppStart}, h.transport.SentTypes(t))
	})

	t.Run("first open is recorded once per install", func(t *testing.T) {
		h := newHarness(t, withConfig(func(cfg *config.Config) { cfg.AutoTrackAppStart = false }))
		require.NoError(t, h.store.Set(storage.KeyFirstOpenRecorded, "true"))

		h.hub.Foreground()

		assert.Equal(t, []string{events.TypeSessionStart}, h.transport.SentTypes(t))
	})
}

func TestImmediateRetryEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.transport.FailNext(1)

	h.p.Record(events.Event{Name: "button_click"})
	outbox, err := recorder.LoadOutbox(h.store)
	require.NoError(t, err)
	require.Len(t, outbox, 1)

	h.clock.Advance(time.Minute)
	h.hub.Background()
	h.clock.Advance(10 * time.Second)

	delivered := 0
	for _, req := range h.transport.Requests()[1:] {
		for _, ev := range testsupport.DecodeBody(t, req) {
			if ev.EventType == "button_click" {
				delivered++
			}
		}
	}
	assert.Equal(t, 1, delivered)

	outbox, err = recorder.LoadOutbox(h.store)
	require.NoError(t, err)
	assert.Empty(t, outbox)
}

func TestScreenTracking(t *testing.T) {
	h := newHarness(t)
	h.hub.Foreground()
	h.transport.Reset()

	h.screens.Push(homePage)
	h.hub.ScreenShown()

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 1)
	view := sent[0]
	assert.Equal(t, events.TypeScreenView, view.EventType)
	assert.Equal(t, "page-1", attr(t, view, events.AttrScreenID))
	assert.Equal(t, "Home", attr(t, view, events.AttrScreenName))
	assert.Equal(t, events.NotApplicable, attr(t, view, events.AttrPreviousScreenID))
	_, hasEngagement := view.Attributes.Get(events.AttrEngagementTimeMsec)
	assert.False(t, hasEngagement)

	h.clock.Advance(3 * time.Second)
	h.transport.Reset()
	h.screens.Push(detailPage)
	h.hub.ScreenShown()

	sent = h.transport.SentEvents(t)
	require.Len(t, sent, 2)
	view, engagement := sent[0], sent[1]
	assert.Equal(t, events.TypeScreenView, view.EventType)
	assert.Equal(t, "pages/detail/index?id=7", attr(t, view, events.AttrScreenRoute))
	assert.Equal(t, "page-1", attr(t, view, events.AttrPreviousScreenID))
	assert.Equal(t, "Home", attr(t, view, events.AttrPreviousScreenName))
	assert.Equal(t, json.Number("3000"), attr(t, view, events.AttrEngagementTimeMsec))

	assert.Equal(t, events.TypeUserEngagement, engagement.EventType)
	assert.Equal(t, "page-1", attr(t, engagement, events.AttrScreenID))
	assert.Equal(t, "pages/home/index", attr(t, engagement, events.AttrScreenRoute))
	assert.Equal(t, json.Number("3000"), attr(t, engagement, events.AttrEngagementTimeMsec))
	_, hasPrevious := engagement.Attributes.Get(events.AttrPreviousScreenID)
	assert.False(t, hasPrevious)

	t.Run("showing the same page again records nothing", func(t *testing.T) {
		h.transport.Reset()
		h.hub.ScreenShown()
		assert.Empty(t, h.transport.Requests())
	})

	t.Run("backgrounding records engagement once", func(t *testing.T) {
		h.transport.Reset()
		h.clock.Advance(2 * time.Second)
		h.hub.Background()

		sent := h.transport.SentEvents(t)
		require.Len(t, sent, 2)
		assert.Equal(t, events.TypeUserEngagement, sent[0].EventType)
		assert.Equal(t, "page-2", attr(t, sent[0], events.AttrScreenID))
		assert.Equal(t, "Detail", attr(t, sent[0], events.AttrScreenName))
		assert.Equal(t, json.Number("2000"), attr(t, sent[0], events.AttrEngagementTimeMsec))
		assert.Equal(t, events.TypeAppEnd, sent[1].EventType)

		last, err := screen.LoadLast(h.store)
		require.NoError(t, err)
		assert.Zero(t, last.Timestamp)
	})

	t.Run("returning to the page restarts its engagement clock", func(t *testing.T) {
		h.clock.Advance(time.Minute)
		h.transport.Reset()
		h.hub.Foreground()
		h.hub.ScreenShown()

		assert.NotContains(t, h.transport.SentTypes(t), events.TypeScreenView)
		last, err := screen.LoadLast(h.store)
		require.NoError(t, err)
		assert.Equal(t, h.clock.Now().UnixMilli(), last.Timestamp)
	})
}

func TestScreenShownWaitsForNetworkType(t *testing.T) {
	src := testsupport.Device()
	src.Network = ""
	h := newHarness(t, withDevice(src))
	h.screens.Push(homePage)

	h.hub.ScreenShown()
	assert.Empty(t, h.transport.Requests())

	h.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{events.TypeScreenView}, h.transport.SentTypes(t))
}

func TestShareAndFavorite(t *testing.T) {
	h := newHarness(t)
	h.screens.Push(homePage)

	h.hub.ScreenShared()
	h.hub.ScreenFavorited()
	assert.Empty(t, h.transport.Requests())

	require.NoError(t, h.p.Configure(context.Background(), config.Options{
		AutoTrackMPShare:    config.Ptr(true),
		AutoTrackMPFavorite: config.Ptr(true),
	}))
	h.hub.ScreenShared()
	h.hub.ScreenFavorited()

	sent := h.transport.SentEvents(t)
	require.Len(t, sent, 2)
	assert.Equal(t, events.TypeShare, sent[0].EventType)
	assert.Equal(t, events.TypeFavorite, sent[1].EventType)
	assert.Equal(t, "Home", attr(t, sent[0], events.AttrScreenName))
}

func TestConfigure(t *testing.T) {
	t.Run("invalid options keep the current configuration", func(t *testing.T) {
		h := newHarness(t)

		err := h.p.Configure(context.Background(), config.Options{AppID: config.Ptr("")})
		assert.ErrorIs(t, err, config.ErrMissingAppID)
		assert.Equal(t, "shop", h.state(t).Config.AppID)
	})

	t.Run("switching to batch mode buffers records", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.p.Configure(context.Background(), config.Options{
			SendMode:           config.Ptr(config.Batch),
			SendEventsInterval: config.Ptr(int64(2000)),
		}))
		h.p.Record(events.Event{Name: "button_click"})
		h.p.Record(events.Event{Name: "button_click"})
		assert.Empty(t, h.transport.Requests())

		h.clock.Advance(2 * time.Second)
		require.Len(t, h.transport.Requests(), 1)
		assert.Equal(t, []string{"button_click", "button_click"}, h.transport.SentTypes(t))
	})

	t.Run("backgrounding flushes the batch buffer", func(t *testing.T) {
		h := newHarness(t, withConfig(func(cfg *config.Config) { cfg.SendMode = config.Batch }))

		h.p.Record(events.Event{Name: "button_click"})
		h.hub.Background()
		assert.Empty(t, h.transport.Requests())

		h.clock.Advance(500 * time.Millisecond)
		assert.Equal(t, []string{"button_click", events.TypeAppEnd}, h.transport.SentTypes(t))
	})

	t.Run("endpoint changes apply to later requests", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.p.Configure(context.Background(), config.Options{
			Endpoint: config.Ptr("https://other.example.com/collect"),
		}))
		h.p.Record(events.Event{Name: "button_click"})

		requests := h.transport.Requests()
		require.Len(t, requests, 1)
		assert.True(t, strings.HasPrefix(requests[0].URL, "https://other.example.com/collect"))
	})
}

func TestFlush(t *testing.T) {
	h := newHarness(t)
	h.transport.FailNext(1)
	h.p.Record(events.Event{Name: "button_click"})

	h.clock.Set(start.Add(2 * time.Minute))
	h.p.Flush()

	outbox, err := recorder.LoadOutbox(h.store)
	require.NoError(t, err)
	assert.Empty(t, outbox)
	assert.Equal(t, []string{"button_click", "button_click"}, h.transport.SentTypes(t))
}

func TestShutdownUnregistersFromLifecycle(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 1, h.hub.Len())

	require.NoError(t, h.p.Shutdown(context.Background()))
	assert.Equal(t, 0, h.hub.Len())
}
