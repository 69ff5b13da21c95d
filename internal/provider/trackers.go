package provider

import (
	"fmt"
	"log/slog"
	"time"

	"clickstream/internal/clock"
	"clickstream/internal/events"
	"clickstream/internal/screen"
	"clickstream/internal/storage"
)

const (
	// foregroundDebounce drops duplicate foreground signals some hosts
	// deliver back to back.
	foregroundDebounce = 100 * time.Millisecond
	// backgroundFlushDelay lets the app end events reach the recorder
	// before the flush.
	backgroundFlushDelay = 500 * time.Millisecond
	// networkTypeWait is how long a screen view waits for the network
	// type lookup.
	networkTypeWait = 500 * time.Millisecond

	jobBackgroundFlush = "background-flush"
)

// OnForeground starts or resumes a session.
func (p *Provider) OnForeground() {
	p.loop.Do(p.onForeground)
}

// OnBackground pauses the session, records engagement on the current
// page and flushes pending events.
func (p *Provider) OnBackground() {
	p.loop.Do(p.onBackground)
}

// OnScreenShown records a screen view when the current page changed.
func (p *Provider) OnScreenShown() {
	p.loop.Do(func() {
		if p.device.HasNetworkType() {
			p.onScreenShown()
			return
		}
		p.deferredShows++
		name := fmt.Sprintf("screen-shown-%d", p.deferredShows)
		p.scheduler.After(name, networkTypeWait, func() error {
			p.onScreenShown()
			return nil
		})
	})
}

// OnScreenShared records a share of the current page.
func (p *Provider) OnScreenShared() {
	p.loop.Do(func() {
		if p.cfg.AutoTrackMPShare {
			p.emitPageEvent(events.TypeShare)
		}
	})
}

// OnScreenFavorited records a favorite of the current page.
func (p *Provider) OnScreenFavorited() {
	p.loop.Do(func() {
		if p.cfg.AutoTrackMPFavorite {
			p.emitPageEvent(events.TypeFavorite)
		}
	})
}

func (p *Provider) onForeground() {
	now := p.clock.Now()
	if !p.lastForeground.IsZero() && now.Sub(p.lastForeground) < foregroundDebounce {
		p.logger.Debug("Ignoring repeated foreground signal")
		return
	}
	p.lastForeground = now

	if p.session.Resume() {
		p.emit(events.Event{Name: events.TypeSessionStart})
	}

	recorded, err := p.store.Get(storage.KeyFirstOpenRecorded)
	switch {
	case err != nil:
		p.logger.Error("Failed to read first open flag", slog.Any("error", err))
	case recorded == "":
		if err := p.store.Set(storage.KeyFirstOpenRecorded, "true"); err != nil {
			p.logger.Error("Failed to persist first open flag", slog.Any("error", err))
		}
		p.emit(events.Event{Name: events.TypeFirstOpen})
	}

	if p.cfg.AutoTrackAppStart {
		p.emit(events.Event{
			Name:       events.TypeAppStart,
			Attributes: events.Attributes{{Name: events.AttrIsFirstTime, Value: p.isFirstTime}},
		})
	}
	p.isFirstTime = false
}

func (p *Provider) onBackground() {
	p.session.Pause()

	last := p.lastPage()
	if last.EngagementPending() {
		if p.cfg.AutoTrackUserEngagement {
			p.emit(engagementEvent(last, clock.UnixMilli(p.clock)))
		}
		last.Timestamp = 0
		p.saveLastPage(last)
	}

	if p.cfg.AutoTrackAppEnd {
		p.emit(events.Event{Name: events.TypeAppEnd})
	}

	p.scheduler.After(jobBackgroundFlush, backgroundFlushDelay, func() error {
		p.recorder.Flush()
		return nil
	})
}

func (p *Provider) onScreenShown() {
	page, ok := screen.Current(p.screens)
	if !ok {
		p.logger.Debug("No current page to track")
		return
	}
	route := page.FullRoute()
	now := clock.UnixMilli(p.clock)
	last := p.lastPage()

	if page.ID == last.ID && route == last.Route && page.Title == last.Name {
		if last.Timestamp == 0 {
			last.Timestamp = now
			p.saveLastPage(last)
		}
		return
	}

	p.saveLastPage(screen.PageInfo{ID: page.ID, Route: route, Name: page.Title, Timestamp: now})

	if p.cfg.AutoTrackPageShow {
		var engagement any = events.Unset
		if last.Timestamp > 0 {
			engagement = now - last.Timestamp
		}
		p.emit(events.Event{
			Name: events.TypeScreenView,
			Attributes: events.Attributes{
				{Name: events.AttrScreenID, Value: page.ID},
				{Name: events.AttrScreenRoute, Value: route},
				{Name: events.AttrScreenName, Value: page.Title},
				{Name: events.AttrPreviousScreenID, Value: last.ID},
				{Name: events.AttrPreviousScreenRoute, Value: last.Route},
				{Name: events.AttrPreviousScreenName, Value: last.Name},
				{Name: events.AttrEngagementTimeMsec, Value: engagement},
			},
		})
	}
	if last.EngagementPending() && p.cfg.AutoTrackUserEngagement {
		p.emit(engagementEvent(last, now))
	}
}

func (p *Provider) emitPageEvent(name string) {
	page, _ := screen.Current(p.screens)
	p.emit(events.Event{
		Name:       name,
		Attributes: events.Attributes{{Name: events.AttrScreenName, Value: page.Title}},
	})
}

// engagementEvent reports the time spent on last. The previous screen
// keys added by the enricher do not apply to it.
func engagementEvent(last screen.PageInfo, now int64) events.Event {
	return events.Event{
		Name: events.TypeUserEngagement,
		Attributes: events.Attributes{
			{Name: events.AttrScreenID, Value: last.ID},
			{Name: events.AttrScreenRoute, Value: last.Route},
			{Name: events.AttrScreenName, Value: last.Name},
			{Name: events.AttrEngagementTimeMsec, Value: now - last.Timestamp},
			{Name: events.AttrPreviousScreenID, Value: events.Unset},
			{Name: events.AttrPreviousScreenRoute, Value: events.Unset},
			{Name: events.AttrPreviousScreenName, Value: events.Unset},
		},
	}
}

func (p *Provider) lastPage() screen.PageInfo {
	last, err := screen.LoadLast(p.store)
	if err != nil {
		p.logger.Error("Failed to load last page info", slog.Any("error", err))
	}
	return last
}

func (p *Provider) saveLastPage(info screen.PageInfo) {
	if err := screen.SaveLast(p.store, info); err != nil {
		p.logger.Error("Failed to persist last page info", slog.Any("error", err))
	}
}
