package vault

import "errors"

var (
	errNilState = errors.New("vault: state not configured")

	ErrNotInitialized                = errors.New("vault: not initialized")
	ErrAlreadyInitialized            = errors.New("vault: already initialized")
	ErrAlreadyAllowed                = errors.New("vault: pair already allowed")
	ErrPairNotAllowed                = errors.New("vault: pair not allowed")
	ErrCannotRemoveWithPendingAmount = errors.New("vault: cannot remove pair with pending early-exited amount")
	ErrCannotRemoveWhilePaused       = errors.New("vault: cannot remove pair while paused")
	ErrTransfersPaused               = errors.New("vault: transfers paused for pair")
	ErrPairNotPaused                 = errors.New("vault: pair not paused")
	ErrFeeTooHigh                    = errors.New("vault: fee exceeds maximum")
	ErrAssetMismatch                 = errors.New("vault: reserve asset mismatch")
	ErrUnknownOracle                 = errors.New("vault: unknown oracle")
	ErrOracleChanged                 = errors.New("vault: oracle redefined since pair registration")
	ErrInvalidLeg                    = errors.New("vault: invalid leg")
	ErrInvalidRange                  = errors.New("vault: invalid range")
	ErrInvalidAmount                 = errors.New("vault: invalid amount")
	ErrInvalidAddress                = errors.New("vault: invalid address")
	ErrInsufficientShares            = errors.New("vault: insufficient shares")
	ErrUnauthorized                  = errors.New("vault: caller is not authorized")
	ErrOverflow                      = errors.New("vault: arithmetic overflow")
	ErrReentrantCall                 = errors.New("vault: reentrant call")
	ErrUnsolicitedTransfer           = errors.New("vault: unsolicited claim transfer")
	ErrBatchTransferRejected         = errors.New("vault: batch claim transfers are not accepted")
	ErrInvariantViolated             = errors.New("vault: accounting invariant violated")
)
