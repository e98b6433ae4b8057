package errno

import "fmt"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个携带具体上下文信息的副本，Code 保持不变
// 调用方用它补充 "expected vs actual" 这类细节
func (e Errno) WithMessage(format string, args ...interface{}) Errno {
	return Errno{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Is 支持 errors.Is(err, errno.ErrXxx) 按 Code 比较
func (e Errno) Is(target error) bool {
	switch typed := target.(type) {
	case *Errno:
		return typed.Code == e.Code
	case Errno:
		return typed.Code == e.Code
	default:
		return false
	}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrNotFound         = Errno{Code: 10005, Message: "Record not found"}
)

// Address Validation (20100+)
var (
	ErrZeroAddress      = Errno{Code: 20101, Message: "Address must not be the zero address"}
	ErrUnchangedAddress = Errno{Code: 20102, Message: "New address is the same as the current one"}
	ErrInvalidAddress   = Errno{Code: 20103, Message: "Malformed address"}
)

// Timing Validation (20200+)
var (
	ErrDeadlineExpired     = Errno{Code: 20201, Message: "Meta-transaction deadline has passed"}
	ErrReleaseTimeNotMet   = Errno{Code: 20202, Message: "Time lock has not elapsed yet"}
	ErrTimeLockOutOfBounds = Errno{Code: 20203, Message: "Time lock period outside allowed bounds"}
)

// Signature Validation (20300+)
var (
	ErrInvalidSignatureLength = Errno{Code: 20301, Message: "Signature must be 65 bytes"}
	ErrSignatureRecovery      = Errno{Code: 20302, Message: "Signature recovery failed"}
	ErrSignerMismatch         = Errno{Code: 20303, Message: "Recovered signer does not match the claimed signer"}
)

// Permission Validation (20400+)
var (
	ErrNoPermission  = Errno{Code: 20401, Message: "Caller lacks the required role permission"}
	ErrRoleNotFound  = Errno{Code: 20402, Message: "Role not found"}
	ErrProtectedRole = Errno{Code: 20403, Message: "Protected roles cannot be modified this way"}
)

// State Validation (20500+)
var (
	ErrTxNotFound            = Errno{Code: 20501, Message: "Transaction not found"}
	ErrTxNotPending          = Errno{Code: 20502, Message: "Transaction is not in pending state"}
	ErrOperationTypeMismatch = Errno{Code: 20503, Message: "Operation type does not match the transaction record"}
	ErrHandlerMismatch       = Errno{Code: 20504, Message: "Handler contract or selector does not match"}
	ErrNonceMismatch         = Errno{Code: 20505, Message: "Signer nonce mismatch"}
	ErrRequestAlreadyOpen    = Errno{Code: 20506, Message: "A pending request already exists for this operation type"}
	ErrChainIDMismatch       = Errno{Code: 20507, Message: "Chain ID does not match the current execution context"}
	ErrGasPriceExceeded      = Errno{Code: 20508, Message: "Current gas price exceeds the signed maximum"}
	ErrRoleExists            = Errno{Code: 20509, Message: "Role hash already exists"}
	ErrPermissionExists      = Errno{Code: 20510, Message: "Permission already granted for this selector on the role"}
	ErrSelectorExists        = Errno{Code: 20511, Message: "Function selector already registered"}
	ErrWalletAlreadyInRole   = Errno{Code: 20512, Message: "Wallet already assigned to the role"}
	ErrWalletNotInRole       = Errno{Code: 20513, Message: "Wallet is not assigned to the role"}
)

// Capacity Validation (20600+)
var (
	ErrRoleAtCapacity  = Errno{Code: 20601, Message: "Role already holds the maximum number of wallets"}
	ErrEmptyRoleName   = Errno{Code: 20602, Message: "Role name must not be empty"}
	ErrZeroMaxWallets  = Errno{Code: 20603, Message: "Role capacity must be at least 1"}
	ErrDefinitionShape = Errno{Code: 20604, Message: "Definition arrays have mismatched lengths"}
)

// Not Supported (20700+)
var (
	ErrOperationTypeUnknown = Errno{Code: 20701, Message: "Operation type is not supported"}
	ErrActionNotSupported   = Errno{Code: 20702, Message: "Action is not supported by this function"}
	ErrExecutionType        = Errno{Code: 20703, Message: "Unknown execution type"}
	ErrSelectorUnknown      = Errno{Code: 20704, Message: "Function selector is not registered"}
)
