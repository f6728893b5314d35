package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific
// errors so ErrorCodeOf can resolve the pair to a precise code.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnavailable  = fmt.Errorf("temporarily unavailable")
)

// Sentinel errors for the domain layer.
var (
	// Workforce / delegation errors.
	ErrNoLeadAgent    = fmt.Errorf("no lead agent registered")
	ErrNotInitialized = fmt.Errorf("workforce not initialized")
	ErrTaskExecution  = fmt.Errorf("task execution failed")

	// Inference errors.
	ErrInference        = fmt.Errorf("inference failed")
	ErrProviderNotFound = fmt.Errorf("inference provider not found")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuth       = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Infra errors.
	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	ErrEncryption = fmt.Errorf("encryption operation failed")
	ErrDecryption = fmt.Errorf("decryption failed")
	ErrStoreWrite = fmt.Errorf("store write failed")
)

// ExecutionError reports a failed task execution. It carries the agent
// that failed and the underlying cause, and matches ErrTaskExecution
// under errors.Is.
type ExecutionError struct {
	AgentID string
	TaskID  string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task execution failed: agent %s: %v", e.AgentID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTaskExecution) match any ExecutionError.
func (e *ExecutionError) Is(target error) bool { return target == ErrTaskExecution }

// NewExecutionError wraps a failed execution's cause with its agent and
// task identifiers.
func NewExecutionError(agentID, taskID string, cause error) *ExecutionError {
	return &ExecutionError{AgentID: agentID, TaskID: taskID, Err: cause}
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for
// ErrorCode dispatch. Use with category sentinels (ErrNotFound,
// ErrDuplicate, ...) so the combination resolves to a specific code.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may
// succeed against another provider or on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and the
// gateway's error frames.
type ErrorCode string

// Error codes. Every sentinel maps to exactly one code; subsystem-tagged
// category sentinels resolve through subSystemCodeMap first.
const (
	CodeUnknown ErrorCode = "UNKNOWN"

	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate   ErrorCode = "AGENT_DUPLICATE"
	CodeAgentLimit       ErrorCode = "AGENT_LIMIT_REACHED"
	CodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"

	CodeNoLeadAgent    ErrorCode = "NO_LEAD_AGENT"
	CodeNotInitialized ErrorCode = "WORKFORCE_NOT_INITIALIZED"
	CodeTaskExecution  ErrorCode = "TASK_EXECUTION_FAILED"
	CodeTaskTimeout    ErrorCode = "TASK_TIMEOUT"

	CodeInference        ErrorCode = "INFERENCE_FAILED"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"

	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"

	CodeConfigLoad ErrorCode = "CONFIG_LOAD"
	CodeEncryption ErrorCode = "ENCRYPTION"
	CodeDecryption ErrorCode = "DECRYPTION"
	CodeStoreWrite ErrorCode = "STORE_WRITE"

	// Category fallback codes when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeUnavailable  ErrorCode = "UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	// Category sentinels (fallback codes).
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,
	ErrUnavailable:  CodeUnavailable,

	// Domain sentinels.
	ErrNoLeadAgent:       CodeNoLeadAgent,
	ErrNotInitialized:    CodeNotInitialized,
	ErrTaskExecution:     CodeTaskExecution,
	ErrInference:         CodeInference,
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrGatewayAuth:       CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrConfigLoad:        CodeConfigLoad,
	ErrEncryption:        CodeEncryption,
	ErrDecryption:        CodeDecryption,
	ErrStoreWrite:        CodeStoreWrite,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific
// ErrorCodes, so NewSubSystemError-based errors resolve to precise codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":    CodeAgentNotFound,
		"template": CodeTemplateNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrLimitReached: {
		"agent": CodeAgentLimit,
	},
	ErrTimeout: {
		"task": CodeTaskTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// For DomainErrors with a SubSystem, it also checks the subSystemCodeMap
// to resolve category sentinels to specific codes.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel and subsystem.
	var de *DomainError
	if errors.As(err, &de) {
		// Check subsystem-specific mapping first (higher specificity).
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Execution failures carry their cause; report the cause's code when
	// it is more specific than the generic execution failure.
	var ee *ExecutionError
	if errors.As(err, &ee) {
		if errors.Is(ee.Err, ErrTimeout) || errors.Is(ee.Err, context.DeadlineExceeded) {
			return CodeTaskTimeout
		}
		return CodeTaskExecution
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
