/*package error contains simple functions for reporting phsp errors along
with the typed errors used by the I/O engine. The typed errors exist so
callers can distinguish, say, a corrupt record from a file that was simply
opened with the wrong format name. Match them with errors.As or with the
Is* helper functions below.
*/
package error

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// External reports an error to stderr and kills the program. It should be
// used when an error is something a user could reasonably be expected to fix
// through changes in configuration/data/environment. It has the same
// signature as the standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	log.Printf("phsp exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a stack trace and kills the
// program. It should be used when the error requires a code dive to fix. It
// has the same signature as the standard fmt.*printf() functions.
func Internal(format string, a ...interface{}) {
	log.Println("phsp exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}

// UnknownFormat is returned when no registered format matches an explicit
// format name, a file extension, or the file's leading bytes.
type UnknownFormat struct {
	Path string
	Name string
}

// MalformedHeader is returned when a file cannot be parsed as the format it
// claims to be. The wrapped error describes what went wrong.
type MalformedHeader struct {
	Path string
	Err  error
}

// DecodeError is returned when a single record in an otherwise readable
// stream cannot be decoded. Offset is the byte offset of the start of the
// bad record within the data stream.
type DecodeError struct {
	Path   string
	Offset int64
	Err    error
}

// CapacityExceeded is returned by a Writer when one more record would
// overflow the format's record-count field. No bytes of the overflowing
// record are written.
type CapacityExceeded struct {
	Path string
	Max  int64
}

// InvalidConfiguration is returned when an option is unsupported or
// contradictory for the chosen format.
type InvalidConfiguration struct {
	Option string
	Reason string
}

// ClosedHandle is returned when a Reader or Writer is used after Close.
type ClosedHandle struct {
	Path string
	Op   string
}

func (e *UnknownFormat) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("The format '%s' is not supported. Only the "+
			"formats reported by phsio.Formats() can be used.", e.Name)
	}
	return fmt.Sprintf("The format of the file '%s' could not be determined "+
		"from its extension or contents. You will need to name the format "+
		"explicitly.", e.Path)
}

func (e *MalformedHeader) Error() string {
	return fmt.Sprintf("The file '%s' could not be read because its header "+
		"is malformed: %v", e.Path, e.Err)
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("The record starting at byte %d of the file '%s' "+
		"could not be decoded: %v", e.Offset, e.Path, e.Err)
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("The file '%s' already holds %d particles, the most "+
		"its format can represent, so no more can be written to it.",
		e.Path, e.Max)
}

func (e *InvalidConfiguration) Error() string {
	return fmt.Sprintf("The option '%s' cannot be used here: %s",
		e.Option, e.Reason)
}

func (e *ClosedHandle) Error() string {
	return fmt.Sprintf("%s was called on '%s' after Close.", e.Op, e.Path)
}

func (e *MalformedHeader) Unwrap() error { return e.Err }
func (e *DecodeError) Unwrap() error     { return e.Err }

// IsUnknownFormat returns true if err is an UnknownFormat error.
func IsUnknownFormat(err error) bool {
	var target *UnknownFormat
	return errors.As(err, &target)
}

// IsMalformedHeader returns true if err is a MalformedHeader error.
func IsMalformedHeader(err error) bool {
	var target *MalformedHeader
	return errors.As(err, &target)
}

// IsDecodeError returns true if err is a DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsCapacityExceeded returns true if err is a CapacityExceeded error.
func IsCapacityExceeded(err error) bool {
	var target *CapacityExceeded
	return errors.As(err, &target)
}

// IsInvalidConfiguration returns true if err is an InvalidConfiguration
// error.
func IsInvalidConfiguration(err error) bool {
	var target *InvalidConfiguration
	return errors.As(err, &target)
}

// IsClosedHandle returns true if err is a ClosedHandle error.
func IsClosedHandle(err error) bool {
	var target *ClosedHandle
	return errors.As(err, &target)
}
