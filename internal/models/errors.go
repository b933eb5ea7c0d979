package models

import "fmt"

// UnsupportedPlatformError indicates the URL matched no known platform
type UnsupportedPlatformError struct {
	URL string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform for url: %s", e.URL)
}

// NotFoundError indicates a missing job, record, or file
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// StrategyAttempt records one failed acquisition attempt
type StrategyAttempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

// StrategyExhaustedError indicates every strategy in a platform's chain failed.
// The user-facing message carries the final attempt's failure; earlier
// attempts stay available for diagnostics.
type StrategyExhaustedError struct {
	Platform Platform
	Attempts []StrategyAttempt
}

func (e *StrategyExhaustedError) Error() string {
	last := e.Last()
	return fmt.Sprintf("all download strategies failed. Last error: %s", last.Error)
}

// Last returns the most recent failed attempt
func (e *StrategyExhaustedError) Last() StrategyAttempt {
	if len(e.Attempts) == 0 {
		return StrategyAttempt{Strategy: "none", Error: "no strategies configured"}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// TranscodeDegradedError indicates audio extraction failed and the original
// container was kept. Non-fatal: surfaced through the job message only.
type TranscodeDegradedError struct {
	Reason string
}

func (e *TranscodeDegradedError) Error() string {
	return fmt.Sprintf("audio extraction failed, keeping original format: %s", e.Reason)
}
