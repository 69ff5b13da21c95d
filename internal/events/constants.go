package events

// Preset event types emitted by the SDK itself.
const (
	TypeFirstOpen      = "_first_open"
	TypeAppStart       = "_app_start"
	TypeAppEnd         = "_app_end"
	TypeSessionStart   = "_session_start"
	TypeScreenView     = "_screen_view"
	TypeUserEngagement = "_user_engagement"
	TypeProfileSet     = "_profile_set"
	TypeShare          = "_mp_share"
	TypeFavorite       = "_mp_favorite"
	TypeError          = "_clickstream_error"
)

// Reserved user attributes
const (
	AttrUserID              = "_user_id"
	AttrUserName            = "_user_name"
	AttrUserFirstTouchStamp = "_user_first_touch_timestamp"
)

// Reserved event attributes
const (
	AttrErrorCode    = "_error_code"
	AttrErrorMessage = "_error_message"

	AttrSessionID             = "_session_id"
	AttrSessionStartTimestamp = "_session_start_timestamp"
	AttrSessionDuration       = "_session_duration"
	AttrSessionNumber         = "_session_number"

	AttrScreenID               = "_screen_id"
	AttrScreenRoute            = "_screen_route"
	AttrScreenName             = "_screen_name"
	AttrScreenUniqueID         = "_screen_unique_id"
	AttrPreviousScreenID       = "_previous_screen_id"
	AttrPreviousScreenRoute    = "_previous_screen_route"
	AttrPreviousScreenName     = "_previous_screen_name"
	AttrPreviousScreenUniqueID = "_previous_screen_unique_id"

	AttrEngagementTimeMsec = "_engagement_time_msec"
	AttrIsFirstTime        = "_is_first_time"
)

// Limits applied by the validator and the enricher.
const (
	MaxAttributes         = 500
	MaxUserAttributes     = 100
	MaxNameLength         = 50
	MaxValueLength        = 1024
	MaxUserValueLength    = 256
	MaxErrorValueLength   = 256
	MaxItems              = 100
	MaxItemLength         = 256
	PresetAttributesCount = 8

	// MaxCustomAttributes is how many caller attributes fit next to the
	// attributes the enricher always adds.
	MaxCustomAttributes = MaxAttributes - PresetAttributesCount
)

// Batch buffer framing. The buffer is persisted without its suffix.
const (
	BufferMaxSize   = 512 * 1024
	BufferPrefix    = "["
	BufferDelimiter = ","
	BufferSuffix    = "]"
)

// Constants for unknown or default values
const (
	Unknown         = "Unknown"
	NotApplicable   = "N/a"
	DefaultPlatform = "WeChatMP"
	SDKName         = "aws-solution-clickstream-sdk"
	SDKVersion      = "0.1.0"
)
