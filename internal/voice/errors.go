package voice

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Components wrap them in a *ComponentError, so callers
// match with errors.Is.
var (
	ErrInvalidProfile    = errors.New("invalid profile")
	ErrPresetNotFound    = errors.New("preset not found")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrInvalidEffect     = errors.New("invalid effect")
	ErrInvalidTransform  = errors.New("invalid transform")
	ErrInvalidEmotion    = errors.New("invalid emotion")
	ErrInvalidIntensity  = errors.New("intensity must be between 0.0 and 1.0")
	ErrUnsupportedEngine = errors.New("unsupported engine")
	ErrEmptyText         = errors.New("empty or whitespace-only text")
	ErrTextTooLong       = errors.New("text exceeds maximum length")
	ErrEmptyAudio        = errors.New("audio is empty")
	ErrFileNotFound      = errors.New("file not found")
	ErrPermission        = errors.New("permission denied")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidExtension  = errors.New("invalid extension")
	ErrPathTraversal     = errors.New("path traversal attempt detected")
	ErrFileExists        = errors.New("file exists")
	ErrInvalidProfileID  = errors.New("invalid profile id")
)

// Recovery is the action a caller is expected to take after a failure.
type Recovery string

const (
	RecoveryRetry Recovery = "RETRY"
	RecoveryAbort Recovery = "ABORT"
)

// ComponentError is the error record every component returns and traces.
type ComponentError struct {
	Code      string         `json:"error_code"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Recovery  Recovery       `json:"recovery_action"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Err       error          `json:"-"`
}

// NewComponentError wraps err with the component's error metadata.
func NewComponentError(component, code string, recovery Recovery, err error, context map[string]any) *ComponentError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ComponentError{
		Code:      code,
		Component: component,
		Message:   msg,
		Recovery:  recovery,
		Context:   context,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Component, e.Code, e.Message)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// Fields flattens the error into a trace payload.
func (e *ComponentError) Fields() map[string]any {
	return map[string]any{
		"error_code":      e.Code,
		"component":       e.Component,
		"message":         e.Message,
		"recovery_action": string(e.Recovery),
		"context":         e.Context,
		"timestamp":       e.Timestamp.Format(time.RFC3339Nano),
	}
}

// ErrorCode extracts the component error code from err, or "" when err does
// not carry one.
func ErrorCode(err error) string {
	var ce *ComponentError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
