package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// OAuth client configuration errors

type ErrClientCredentials struct {
	Path   string
	Reason string
}

func (e *ErrClientCredentials) Error() string {
	return fmt.Sprintf("oauth client credentials unusable (%s): %s", e.Path, e.Reason)
}

// ErrCredentialUnusable marks a stored user credential that can neither be
// used nor refreshed. Callers must surface it once and stop retrying.
type ErrCredentialUnusable struct {
	ChatID int64
	Reason string
}

func (e *ErrCredentialUnusable) Error() string {
	return fmt.Sprintf("credential for chat %d unusable: %s", e.ChatID, e.Reason)
}

// ErrDeviceFlow is a terminal device-authorization failure returned by the
// token endpoint (expired_token, access_denied, ...).
type ErrDeviceFlow struct {
	Code        string
	Description string
}

func (e *ErrDeviceFlow) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("device authorization failed: %s", e.Code)
	}
	return fmt.Sprintf("device authorization failed: %s (%s)", e.Code, e.Description)
}

// Remote call errors

type ErrGmailCall struct {
	Op  string
	Err error
}

func (e *ErrGmailCall) Error() string {
	return fmt.Sprintf("gmail %s failed: %v", e.Op, e.Err)
}

func (e *ErrGmailCall) Unwrap() error {
	return e.Err
}

type ErrTelegramSend struct {
	ChatID int64
	Err    error
}

func (e *ErrTelegramSend) Error() string {
	return fmt.Sprintf("telegram send to chat %d failed: %v", e.ChatID, e.Err)
}

func (e *ErrTelegramSend) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

type ErrFileWrite struct {
	Path string
	Err  error
}

func (e *ErrFileWrite) Error() string {
	return fmt.Sprintf("failed to write file %s: %v", e.Path, e.Err)
}

func (e *ErrFileWrite) Unwrap() error {
	return e.Err
}
