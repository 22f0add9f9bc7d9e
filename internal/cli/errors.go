package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/config"
	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
)

const (
	ExitCodeSuccess     = 0
	ExitCodeGeneric     = 1
	ExitCodeUsage       = 2
	ExitCodeNotFound    = 3
	ExitCodeConflict    = 4
	ExitCodeInvalidData = 5
	ExitCodeSchema      = 6
	ExitCodeIO          = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, storage.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, storage.ErrDuplicateKey):
		return asExitError(ExitCodeConflict, err)
	case errors.Is(err, storage.ErrInvalidRecord):
		return asExitError(ExitCodeInvalidData, err)
	case errors.Is(err, storage.ErrSchemaTooNew):
		return asExitError(ExitCodeSchema, err)
	case errors.Is(err, storage.ErrStorageUnavailable):
		return asExitError(ExitCodeIO, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}
	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
