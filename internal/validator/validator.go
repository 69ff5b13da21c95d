// Package validator checks event names, attributes and items against the
// naming and length limits of the ingestion pipeline. It performs no I/O.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"unicode/utf8"

	"clickstream/internal/events"
)

// Code identifies a validation failure on the wire.
type Code int

const (
	NoError                        Code = 0
	EventNameInvalid               Code = 1001
	EventNameLengthExceed          Code = 1002
	AttributeNameLengthExceed      Code = 2001
	AttributeNameInvalid           Code = 2002
	AttributeValueLengthExceed     Code = 2003
	AttributeSizeExceed            Code = 2004
	UserAttributeSizeExceed        Code = 3001
	UserAttributeNameLengthExceed  Code = 3002
	UserAttributeNameInvalid       Code = 3003
	UserAttributeValueLengthExceed Code = 3004
	ItemSizeExceed                 Code = 4001
	ItemValueLengthExceed          Code = 4002
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Error is the result of a validation. The zero value means no error.
type Error struct {
	Code    Code
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s (error code: %d)", e.Message, e.Code)
}

// OK reports whether the validation passed.
func (e Error) OK() bool {
	return e.Code == NoError
}

// Event converts the failure into the diagnostic event that reports it.
func (e Error) Event() events.Event {
	return events.ErrorEvent(int(e.Code), truncate(e.Message, events.MaxErrorValueLength))
}

// ValidateEventName checks the naming rule and the name length.
func ValidateEventName(name string) Error {
	if !IsValidName(name) {
		return Error{
			Code: EventNameInvalid,
			Message: "Invalid event name. Event name can only consist of alphanumeric characters and underscores " +
				"but not start with a digit (0-9)",
		}
	}
	if utf8.RuneCountInString(name) > events.MaxNameLength {
		return Error{
			Code:    EventNameLengthExceed,
			Message: fmt.Sprintf("Invalid event name. Event name is too long, max name length is %d", events.MaxNameLength),
		}
	}
	return Error{}
}

// ValidateAttribute checks an event attribute name and its stringified value.
func ValidateAttribute(name string, value any) Error {
	if !IsValidName(name) {
		return Error{
			Code: AttributeNameInvalid,
			Message: "Invalid attribute name. Attribute name can only consist of alphanumeric characters and underscores " +
				"but not start with a digit (0-9)",
		}
	}
	if utf8.RuneCountInString(name) > events.MaxNameLength {
		return Error{
			Code:    AttributeNameLengthExceed,
			Message: fmt.Sprintf("Invalid attribute name. Attribute name is too long, max name length is %d", events.MaxNameLength),
		}
	}
	if utf8.RuneCountInString(Stringify(value)) > events.MaxValueLength {
		return Error{
			Code:    AttributeValueLengthExceed,
			Message: fmt.Sprintf("Invalid attribute value. Attribute value is too long, max value length is %d", events.MaxValueLength),
		}
	}
	if !Encodable(value) {
		return Error{
			Code:    AttributeValueLengthExceed,
			Message: fmt.Sprintf("Invalid attribute value. The value of attribute %s can not be encoded as JSON", name),
		}
	}
	return Error{}
}

// ValidateUserAttribute checks a user attribute name and its stringified value.
func ValidateUserAttribute(name string, value any) Error {
	if !IsValidName(name) {
		return Error{
			Code: UserAttributeNameInvalid,
			Message: "Invalid user attribute name. Attribute name can only consist of alphanumeric characters and underscores " +
				"but not start with a digit (0-9)",
		}
	}
	if utf8.RuneCountInString(name) > events.MaxNameLength {
		return Error{
			Code:    UserAttributeNameLengthExceed,
			Message: fmt.Sprintf("Invalid user attribute name. Attribute name is too long, max name length is %d", events.MaxNameLength),
		}
	}
	if utf8.RuneCountInString(Stringify(value)) > events.MaxUserValueLength {
		return UserValueTooLong()
	}
	if !Encodable(value) {
		return Error{
			Code:    UserAttributeValueLengthExceed,
			Message: fmt.Sprintf("Invalid user attribute value. The value of attribute %s can not be encoded as JSON", name),
		}
	}
	return Error{}
}

// ValidateItem checks the encoded length of an item.
func ValidateItem(item events.Item) Error {
	encoded, err := json.Marshal(item)
	if err != nil || utf8.RuneCount(encoded) > events.MaxItemLength {
		return Error{
			Code:    ItemValueLengthExceed,
			Message: fmt.Sprintf("Invalid item. Item value is too long, max value length is %d", events.MaxItemLength),
		}
	}
	return Error{}
}

// AttributeLimitReached is reported when a caller supplies more attributes
// than fit in one event.
func AttributeLimitReached() Error {
	return Error{
		Code:    AttributeSizeExceed,
		Message: fmt.Sprintf("Reached the limit of attributes number. Will discard attributes that are beyond %d", events.MaxAttributes),
	}
}

// ItemLimitReached is reported when an event carries too many items.
func ItemLimitReached() Error {
	return Error{
		Code:    ItemSizeExceed,
		Message: fmt.Sprintf("Reached the limit of items number. Will discard items that are beyond %d", events.MaxItems),
	}
}

// UserAttributeLimitReached is reported when no more user attributes fit.
func UserAttributeLimitReached() Error {
	return Error{
		Code:    UserAttributeSizeExceed,
		Message: fmt.Sprintf("Reached the limit of user attributes number. Will discard user attributes that are beyond %d", events.MaxUserAttributes),
	}
}

// UserValueTooLong is reported for user attribute values, the user id
// included, over the user value limit.
func UserValueTooLong() Error {
	return Error{
		Code:    UserAttributeValueLengthExceed,
		Message: fmt.Sprintf("Invalid user attribute value. Attribute value is too long, max value length is %d", events.MaxUserValueLength),
	}
}

// IsValidName reports whether name consists of alphanumeric characters and
// underscores and does not start with a digit.
func IsValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Encodable reports whether value survives JSON encoding. NaN and the
// infinities do not.
func Encodable(value any) bool {
	switch v := value.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
	default:
		_, err := json.Marshal(v)
		return err == nil
	}
}

// Stringify renders an attribute value the way its length is measured.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
