package tools

import (
	"errors"
	"fmt"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

// ErrorKind classifies a tool invocation failure
type ErrorKind string

const (
	// KindBinaryNotFound: the executable could not be launched
	KindBinaryNotFound ErrorKind = "BinaryNotFound"
	// KindMalformedOutput: a tool that must emit JSON emitted something unparsable
	KindMalformedOutput ErrorKind = "MalformedOutput"
	// KindScanFailed: the tool ran but exited outside its accepted set.
	// Recorded on the ToolResult, never returned by an adapter.
	KindScanFailed ErrorKind = "ScanFailed"
	// KindTimeout: the tool exceeded its time bound
	KindTimeout ErrorKind = "Timeout"
	// KindDirectoryRestoreFailed: the scoped directory change could not be undone
	KindDirectoryRestoreFailed ErrorKind = "DirectoryRestoreFailed"
)

// Sentinel errors, one per kind, for errors.Is
var (
	ErrBinaryNotFound         = errors.New("tool binary not found")
	ErrMalformedOutput        = errors.New("malformed tool output")
	ErrScanFailed             = errors.New("tool exited with unexpected code")
	ErrTimeout                = errors.New("tool timed out")
	ErrDirectoryRestoreFailed = errors.New("directory restore failed")
)

var kindSentinels = map[ErrorKind]error{
	KindBinaryNotFound:         ErrBinaryNotFound,
	KindMalformedOutput:        ErrMalformedOutput,
	KindScanFailed:             ErrScanFailed,
	KindTimeout:                ErrTimeout,
	KindDirectoryRestoreFailed: ErrDirectoryRestoreFailed,
}

// ToolInvocationError is a pipeline failure of a single tool.
// All kinds except ScanFailed abort the whole scan.
type ToolInvocationError struct {
	Kind   ErrorKind
	Tool   models.Tool
	Binary string

	// Err is the underlying cause, may be nil
	Err error

	// Output holds stderr (or the unparsable stdout for MalformedOutput)
	Output string
}

func (e *ToolInvocationError) Error() string {
	msg := fmt.Sprintf("%s (%s): %s", e.Tool.DisplayName(), e.Binary, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(e.Output, 512))
	}
	return msg
}

// Is matches the sentinel of the error's kind
func (e *ToolInvocationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// NewToolInvocationError creates a ToolInvocationError
func NewToolInvocationError(kind ErrorKind, tool models.Tool, binary string, err error) *ToolInvocationError {
	return &ToolInvocationError{
		Kind:   kind,
		Tool:   tool,
		Binary: binary,
		Err:    err,
	}
}

// WithOutput returns a copy of the error with the output field set
func (e *ToolInvocationError) WithOutput(output string) *ToolInvocationError {
	return &ToolInvocationError{
		Kind:   e.Kind,
		Tool:   e.Tool,
		Binary: e.Binary,
		Err:    e.Err,
		Output: output,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
