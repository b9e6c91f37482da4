package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrInternal          = errors.New("internal")
	ErrUnavailable       = errors.New("unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrResetAborted      = errors.New("reset aborted")
)

// InvalidPathError reports an ingest root that does not exist or cannot be listed.
type InvalidPathError struct {
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("path does not exist: %s", e.Path)
	}
	return fmt.Sprintf("invalid path %s: %v", e.Path, e.Err)
}

func (e *InvalidPathError) Unwrap() error {
	return e.Err
}

// FileReadError is reported for a single file during a walk; the walk goes on.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

type StoreConnectionError struct {
	Op  string
	Err error
}

func (e *StoreConnectionError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreConnectionError) Unwrap() error {
	return e.Err
}

type MissingCredentialError struct {
	Name string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential: please set %s environment variable", e.Name)
}

func (e *MissingCredentialError) Is(target error) bool {
	return target == ErrUnavailable
}

type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidPath(err error) bool {
	var target *InvalidPathError
	return errors.As(err, &target)
}

func IsFileRead(err error) bool {
	var target *FileReadError
	return errors.As(err, &target)
}

func IsStoreConnection(err error) bool {
	var target *StoreConnectionError
	return errors.As(err, &target)
}

func IsMissingCredential(err error) bool {
	var target *MissingCredentialError
	return errors.As(err, &target)
}

func IsGeneration(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}
