// Package identity maintains the anonymous user identity and the user
// attributes attached to every event.
package identity

import (
	"log/slog"

	"github.com/google/uuid"

	"clickstream/internal/clock"
	"clickstream/internal/events"
	"clickstream/internal/storage"
	"clickstream/internal/validator"
)

// Info is the persisted user identity.
type Info struct {
	UniqueID   string                `json:"unique_id"`
	Attributes events.UserAttributes `json:"attributes"`
}

// Clone returns a deep copy of the attribute map.
func (i Info) Clone() Info {
	attrs := make(events.UserAttributes, len(i.Attributes))
	for k, v := range i.Attributes {
		attrs[k] = v
	}
	return Info{UniqueID: i.UniqueID, Attributes: attrs}
}

// Result describes the outcome of an identity change.
type Result struct {
	// Changed is set when persisted attributes changed and a profile
	// event should be emitted.
	Changed bool
	// Err is the last validation error seen, if any.
	Err validator.Error
}

// Identity owns the user info. It is driven from the run loop.
type Identity struct {
	store  storage.Store
	clock  clock.Clock
	logger *slog.Logger
	newID  func() string

	info Info
}

// Option customizes an Identity.
type Option func(*Identity)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(i *Identity) { i.newID = gen }
}

// Load reads the persisted identity, creating and persisting a fresh one
// when none exists.
func Load(store storage.Store, clk clock.Clock, logger *slog.Logger, opts ...Option) *Identity {
	id := &Identity{
		store:  store,
		clock:  clk,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(id)
	}

	found, err := storage.GetJSON(store, storage.KeyUserInfo, &id.info)
	if err != nil {
		logger.Error("Failed to load user info, creating a new identity", slog.Any("error", err))
	}
	if !found || err != nil || id.info.UniqueID == "" {
		id.info = id.fresh()
		id.persist()
		return id
	}
	if id.info.Attributes == nil {
		id.info.Attributes = events.UserAttributes{}
	}
	return id
}

// UniqueID returns the anonymous identifier.
func (i *Identity) UniqueID() string {
	return i.info.UniqueID
}

// Attributes returns a snapshot of the user attributes.
func (i *Identity) Attributes() events.UserAttributes {
	return i.info.Clone().Attributes
}

// Info returns a snapshot of the identity.
func (i *Identity) Info() Info {
	return i.info.Clone()
}

// Reset discards the identity, keeping only a reseeded first touch
// timestamp under a new anonymous id.
func (i *Identity) Reset() {
	i.info = i.fresh()
	i.persist()
	i.logger.Info("User info reset", slog.String("unique_id", i.info.UniqueID))
}

// SetUserID clears the identity when userID is nil or empty. Otherwise it
// stores the id as the _user_id attribute.
func (i *Identity) SetUserID(userID *string) Result {
	if userID == nil || *userID == "" {
		i.Reset()
		return Result{}
	}

	if !validator.ValidateUserAttribute(events.AttrUserID, *userID).OK() {
		return Result{Err: validator.UserValueTooLong()}
	}

	i.info.Attributes[events.AttrUserID] = events.UserAttribute{
		Value:        *userID,
		SetTimestamp: clock.UnixMilli(i.clock),
	}
	i.persist()
	i.logger.Debug("User id set", slog.String("user_id", *userID))
	return Result{Changed: true}
}

// SetAttributes applies deletions (nil values) first, then additions and
// updates up to the attribute cap.
func (i *Identity) SetAttributes(attrs events.Attributes) Result {
	now := clock.UnixMilli(i.clock)
	var result Result

	for _, attr := range attrs {
		if attr.Value != nil {
			continue
		}
		if _, ok := i.info.Attributes[attr.Name]; ok {
			delete(i.info.Attributes, attr.Name)
			result.Changed = true
		}
	}

	for _, attr := range attrs {
		if attr.Value == nil {
			continue
		}
		_, exists := i.info.Attributes[attr.Name]
		if !exists && len(i.info.Attributes) >= events.MaxUserAttributes {
			result.Err = validator.UserAttributeLimitReached()
			break
		}

		if check := validator.ValidateUserAttribute(attr.Name, attr.Value); !check.OK() {
			result.Err = check
			continue
		}
		i.info.Attributes[attr.Name] = events.UserAttribute{Value: attr.Value, SetTimestamp: now}
		result.Changed = true
	}

	if result.Changed {
		i.persist()
	}
	return result
}

func (i *Identity) fresh() Info {
	return Info{
		UniqueID: i.newID(),
		Attributes: events.UserAttributes{
			events.AttrUserFirstTouchStamp: {
				Value:        clock.UnixMilli(i.clock),
				SetTimestamp: clock.UnixMilli(i.clock),
			},
		},
	}
}

func (i *Identity) persist() {
	if err := storage.SetJSON(i.store, storage.KeyUserInfo, i.info); err != nil {
		i.logger.Error("Failed to persist user info", slog.Any("error", err))
	}
}
