package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/msggate/internal/admission"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a message or counter was refused, or an audit or scenario failed
	ExitCommandError = 2 // the command could not run: flags, config, backend
)

// ExitError carries the exit code of a failed command to main.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Diagnostics go to ErrWriter so they never mix with JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the JSON error body. Code is an admission code such as
// SEQUENCE_TOO_OLD, or one of the E_* command codes. The admission fields
// are set only for rejections.
type CLIError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Class         string `json:"class,omitempty"`
	Stage         string `json:"stage,omitempty"`
	SourceChainID string `json:"source_chain_id,omitempty"`
	SequenceID    string `json:"message_sequence_id,omitempty"`
	Details       any    `json:"details,omitempty"`
}

// rejectionOf describes an admission error. A zero sequence id means the
// rejection concerns a counter rather than a message and is left out.
func rejectionOf(err error) *CLIError {
	code := admission.CodeOf(err)
	p := &CLIError{
		Code:    string(code),
		Message: err.Error(),
		Class:   string(code.Class()),
	}
	var ae *admission.Error
	if errors.As(err, &ae) {
		if ae.Err != nil {
			p.Message = ae.Err.Error()
		}
		p.Stage = ae.Stage.String()
		p.SourceChainID = ae.Chain.String()
		if !ae.Sequence.IsZero() {
			p.SequenceID = ae.Sequence.String()
		}
	}
	return p
}

// Success writes data as the JSON payload, or prints it in text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Render writes data as the JSON payload, or text in text mode.
func (f *OutputFormatter) Render(data any, text string) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	_, err := io.WriteString(f.Writer, text)
	return err
}

// Problem writes p. Text mode prints the code and message, and with
// Verbose the rejection context and details.
func (f *OutputFormatter) Problem(p *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: p})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", p.Code, p.Message)
	if !f.Verbose {
		return nil
	}
	if p.Class != "" {
		fmt.Fprintf(f.Writer, "  class:    %s\n", p.Class)
	}
	if p.Stage != "" {
		fmt.Fprintf(f.Writer, "  stage:    %s\n", p.Stage)
	}
	if p.SourceChainID != "" {
		fmt.Fprintf(f.Writer, "  chain:    %s\n", p.SourceChainID)
	}
	if p.SequenceID != "" {
		fmt.Fprintf(f.Writer, "  sequence: %s\n", p.SequenceID)
	}
	if p.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", p.Details)
	}
	return nil
}

// Fail reports err under code and returns it with the given exit code.
func (f *OutputFormatter) Fail(exit int, code string, err error) error {
	_ = f.Problem(&CLIError{Code: code, Message: err.Error()})
	return WrapExitError(exit, code, err)
}

// Reject reports an admission rejection under its own code and class.
func (f *OutputFormatter) Reject(err error) error {
	p := rejectionOf(err)
	_ = f.Problem(p)
	return WrapExitError(ExitFailure, p.Code, err)
}

// VerboseLog prints a diagnostic line when Verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
