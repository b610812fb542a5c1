package types

import "errors"

var (
	// ErrDataUnavailable: market data fetch exhausted its retries and no cached bars exist.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrJudgmentUnavailable: every completion model failed.
	ErrJudgmentUnavailable = errors.New("judgment unavailable")
	// ErrConfigInvalid wraps every configuration validation failure.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrSnapshotExists: an equity snapshot was already written for the date.
	ErrSnapshotExists = errors.New("equity snapshot already exists")
)
