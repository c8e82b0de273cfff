package apperrors

import "errors"

var (
	ErrUnreadableInput        = errors.New("input could not be decoded in any supported encoding")
	ErrSyntheticKeysExhausted = errors.New("synthetic key counter exceeded the reserved range")
	ErrNoColumns              = errors.New("source has no columns")
	ErrWatermarkCorrupt       = errors.New("watermark state is corrupt")
)
