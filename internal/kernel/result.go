package kernel

import "errors"

// ResultCode is the guest-visible status code a system call delivers. The
// encodings match the console kernel's error descriptors so guest software
// observes the exact values it expects.
type ResultCode uint32

const (
	// ResultSuccess indicates the operation completed.
	ResultSuccess ResultCode = 0
	// ResultOutOfResource indicates a kernel resource pool was exhausted.
	ResultOutOfResource ResultCode = 0xD201
	// ResultInvalidPriority indicates a priority outside [PriorityHighest, PriorityLowest].
	ResultInvalidPriority ResultCode = 0xE001
	// ResultInvalidCoreID indicates a processor id outside the valid range.
	ResultInvalidCoreID ResultCode = 0xE201
	// ResultTimeout indicates a wait elapsed without any object becoming ready.
	// A timeout is an expected outcome of waiting, not a failure.
	ResultTimeout ResultCode = 0xEA01
)

// IsSuccess reports whether the code indicates success.
func (r ResultCode) IsSuccess() bool { return r == ResultSuccess }

// IsError reports whether the code indicates failure. Timeout counts as an
// error code at the system-call boundary even though it is an expected outcome.
func (r ResultCode) IsError() bool { return r != ResultSuccess }

// String returns a short name for the result code.
func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultOutOfResource:
		return "out-of-resource"
	case ResultInvalidPriority:
		return "invalid-priority"
	case ResultInvalidCoreID:
		return "invalid-core-id"
	case ResultTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Creation failures surface as typed errors to the host-side caller; the SVC
// layer translates them to the ResultCode equivalents above.
var (
	// ErrInvalidPriority reports a thread priority outside [0, 63].
	ErrInvalidPriority = errors.New("thread priority out of range")
	// ErrInvalidProcessorID reports a processor id outside [-2, 4).
	ErrInvalidProcessorID = errors.New("processor id out of range")
	// ErrNilOwnerProcess reports thread creation without an owning process.
	ErrNilOwnerProcess = errors.New("thread requires an owner process")
	// ErrTLSSlotsExhausted reports that the owner process has no free TLS slot.
	ErrTLSSlotsExhausted = errors.New("no free TLS slot in owner process")
)
