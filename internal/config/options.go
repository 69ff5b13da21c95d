package config

// Options carries configuration overrides. Nil fields keep the current
// value.
type Options struct {
	AppID                   *string
	Endpoint                *string
	SendMode                *SendMode
	SendEventsInterval      *int64
	AutoTrackAppStart       *bool
	AutoTrackAppEnd         *bool
	AutoTrackPageShow       *bool
	AutoTrackUserEngagement *bool
	AutoTrackMPShare        *bool
	AutoTrackMPFavorite     *bool
	SessionTimeoutDuration  *int64
	Debug                   *bool
	AuthCookie              *string
	Platform                *string
}

// Ptr returns a pointer to v, for building Options literals.
func Ptr[T any](v T) *T {
	return &v
}

// Apply returns a copy of c with every set option applied. The receiver
// is left untouched, and the copy is returned only if it validates.
func (c *Config) Apply(opts Options) (*Config, error) {
	next := c.Clone()

	assign(&next.AppID, opts.AppID)
	assign(&next.Endpoint, opts.Endpoint)
	assign(&next.SendMode, opts.SendMode)
	assign(&next.SendEventsInterval, opts.SendEventsInterval)
	assign(&next.AutoTrackAppStart, opts.AutoTrackAppStart)
	assign(&next.AutoTrackAppEnd, opts.AutoTrackAppEnd)
	assign(&next.AutoTrackPageShow, opts.AutoTrackPageShow)
	assign(&next.AutoTrackUserEngagement, opts.AutoTrackUserEngagement)
	assign(&next.AutoTrackMPShare, opts.AutoTrackMPShare)
	assign(&next.AutoTrackMPFavorite, opts.AutoTrackMPFavorite)
	assign(&next.SessionTimeoutDuration, opts.SessionTimeoutDuration)
	assign(&next.Debug, opts.Debug)
	assign(&next.AuthCookie, opts.AuthCookie)
	assign(&next.Platform, opts.Platform)

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
