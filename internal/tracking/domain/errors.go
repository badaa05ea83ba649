package domain

import "errors"

var (
	ErrNoHandler              = errors.New("tracking_handler_not_found")
	ErrEmptyPayload           = errors.New("tracking_payload_empty")
	ErrInvalidAPIAction       = errors.New("invalid_api_action")
	ErrMissingTrackingType    = errors.New("missing_tracking_type")
	ErrMissingTrackingSubType = errors.New("missing_tracking_sub_type")
	ErrEventDisabled          = errors.New("tracking_event_disabled")
	ErrInvalidPattern         = errors.New("invalid_tracking_pattern")
	ErrDuplicateExtension     = errors.New("duplicate_tracking_extension")
	ErrDuplicateRecord        = errors.New("duplicate_usage_record")
)
