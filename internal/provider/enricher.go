package provider

import (
	"clickstream/internal/clock"
	"clickstream/internal/events"
	"clickstream/internal/screen"
)

// enrich builds the canonical record. Attribute layers are merged in the
// order session, screen, event.
func (p *Provider) enrich(ev events.Event) events.AnalyticsEvent {
	now := clock.UnixMilli(p.clock)
	info := p.session.Info()
	sessionAttrs := events.Attributes{
		{Name: events.AttrSessionID, Value: info.ID},
		{Name: events.AttrSessionStartTimestamp, Value: info.FirstStartTime},
		{Name: events.AttrSessionNumber, Value: info.Count},
		{Name: events.AttrSessionDuration, Value: now - info.FirstStartTime},
	}

	dev := p.device.Info()
	record := events.AnalyticsEvent{
		AppID:            p.cfg.AppID,
		UniqueID:         p.identity.UniqueID(),
		DeviceID:         dev.DeviceID,
		EventType:        ev.Name,
		EventID:          p.newEventID(),
		Timestamp:        now,
		Platform:         p.cfg.Platform,
		OSName:           orUnknown(dev.OSName),
		OSVersion:        orUnknown(dev.OSVersion),
		WeChatVersion:    orUnknown(dev.WeChatVersion),
		WeChatSDKVersion: orUnknown(dev.WeChatSDKVersion),
		Brand:            orUnknown(dev.Brand),
		Model:            orUnknown(dev.Model),
		SystemLanguage:   orUnknown(dev.SystemLanguage),
		ScreenHeight:     dev.ScreenHeight,
		ScreenWidth:      dev.ScreenWidth,
		ZoneOffset:       dev.ZoneOffset,
		NetworkType:      dev.NetworkType,
		SDKVersion:       dev.SDKVersion,
		SDKName:          dev.SDKName,
		AppVersion:       orUnknown(dev.AppVersion),
		AppPackageName:   orUnknown(dev.AppPackageName),
		User:             p.identity.Attributes(),
		Attributes:       events.Merge(sessionAttrs, screen.Attributes(p.screens), ev.Attributes),
	}
	if len(ev.Items) > 0 {
		record.Items = ev.Items
	}
	return record
}

func orUnknown(s string) string {
	if s == "" {
		return events.Unknown
	}
	return s
}
