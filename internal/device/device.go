// Package device assembles the device and app metadata attached to every
// event.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clickstream/internal/clock"
	"clickstream/internal/events"
	"clickstream/internal/runloop"
	"clickstream/internal/storage"
)

// networkTypeTimeout bounds the asynchronous network type lookup.
const networkTypeTimeout = 5 * time.Second

// SystemInfo is the host system description.
type SystemInfo struct {
	Platform     string
	System       string
	Version      string
	SDKVersion   string
	Brand        string
	Model        string
	Language     string
	ScreenHeight int
	ScreenWidth  int
}

// AccountInfo identifies the host application.
type AccountInfo struct {
	AppID   string
	Version string
}

// Source supplies device metadata from the host platform.
type Source interface {
	SystemInfo() (SystemInfo, error)
	AccountInfo() (AccountInfo, error)
	NetworkType(ctx context.Context) (string, error)
}

// Info is the device and app context of a record. Empty strings mean the
// value is unknown.
type Info struct {
	DeviceID         string
	OSName           string
	OSVersion        string
	WeChatVersion    string
	WeChatSDKVersion string
	Brand            string
	Model            string
	SystemLanguage   string
	ScreenHeight     int
	ScreenWidth      int
	ZoneOffset       int64
	NetworkType      string
	SDKName          string
	SDKVersion       string
	AppVersion       string
	AppPackageName   string
}

// Context holds the device info. The network type is filled in on the
// run loop once the lookup completes.
type Context struct {
	info   Info
	logger *slog.Logger
}

// Load builds the device context. Failing to read system or account info
// is fatal since no valid record can be produced without them.
func Load(store storage.Store, src Source, clk clock.Clock, loop runloop.Loop, logger *slog.Logger) (*Context, error) {
	deviceID, err := DeviceID(store)
	if err != nil {
		return nil, err
	}

	system, err := src.SystemInfo()
	if err != nil {
		logger.Error("Failed to read system info", slog.Any("error", err))
		return nil, fmt.Errorf("failed to read system info: %w", err)
	}
	account, err := src.AccountInfo()
	if err != nil {
		logger.Error("Failed to read account info", slog.Any("error", err))
		return nil, fmt.Errorf("failed to read account info: %w", err)
	}

	_, offsetSeconds := clk.Now().Zone()
	c := &Context{
		logger: logger,
		info: Info{
			DeviceID:         deviceID,
			OSName:           system.Platform,
			OSVersion:        system.System,
			WeChatVersion:    system.Version,
			WeChatSDKVersion: system.SDKVersion,
			Brand:            system.Brand,
			Model:            system.Model,
			SystemLanguage:   system.Language,
			ScreenHeight:     system.ScreenHeight,
			ScreenWidth:      system.ScreenWidth,
			ZoneOffset:       int64(offsetSeconds) * 1000,
			SDKName:          events.SDKName,
			SDKVersion:       events.SDKVersion,
			AppVersion:       account.Version,
			AppPackageName:   account.AppID,
		},
	}

	loop.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), networkTypeTimeout)
		defer cancel()
		networkType, err := src.NetworkType(ctx)
		if err != nil {
			logger.Error("Failed to get network type", slog.Any("error", err))
			return
		}
		loop.Do(func() { c.info.NetworkType = networkType })
	})

	return c, nil
}

// Info returns a copy of the device info.
func (c *Context) Info() Info {
	return c.info
}

// HasNetworkType reports whether the asynchronous lookup has completed.
func (c *Context) HasNetworkType() bool {
	return c.info.NetworkType != ""
}

// DeviceID returns the persisted device id, generating it on first use.
func DeviceID(store storage.Store) (string, error) {
	id, err := store.Get(storage.KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := store.Set(storage.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}
