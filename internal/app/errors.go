package app

import errorsmod "cosmossdk.io/errors"

const errCodespace = "guess"

// Engine sentinel errors. Grouped by the class of failure; every rejected tx
// maps to exactly one of these via errorsmod.ABCIInfo.
var (
	// Validation.
	ErrInvalidRequest        = errorsmod.Register(errCodespace, 1, "invalid request")
	ErrInvalidMetadata       = errorsmod.Register(errCodespace, 2, "invalid metadata")
	ErrInvalidPayload        = errorsmod.Register(errCodespace, 3, "invalid payload")
	ErrInvalidShareBps       = errorsmod.Register(errCodespace, 4, "share bps out of range")
	ErrInvalidGuessReference = errorsmod.Register(errCodespace, 5, "invalid guess reference")
	ErrLengthMismatch        = errorsmod.Register(errCodespace, 6, "length mismatch")

	// Authorization.
	ErrUnauthorized = errorsmod.Register(errCodespace, 7, "unauthorized")
	ErrNotOperator  = errorsmod.Register(errCodespace, 8, "caller is not an operator")
	ErrNotGuardian  = errorsmod.Register(errCodespace, 9, "caller is not a guardian")
	ErrNotRecipient = errorsmod.Register(errCodespace, 10, "caller is not the deal recipient")
	ErrNotViewer    = errorsmod.Register(errCodespace, 11, "caller is not the deal viewer")

	// State.
	ErrGameNotFound    = errorsmod.Register(errCodespace, 12, "game not found")
	ErrGameInactive    = errorsmod.Register(errCodespace, 13, "game inactive")
	ErrAlreadyResolved = errorsmod.Register(errCodespace, 14, "deal already resolved")
	ErrDealNotFound    = errorsmod.Register(errCodespace, 15, "deal not found")

	// Invariant violations.
	ErrSharesExceeded        = errorsmod.Register(errCodespace, 16, "shares exceeded")
	ErrSettlementSumMismatch = errorsmod.Register(errCodespace, 17, "settlement sum mismatch")

	// Resources.
	ErrInsufficientFunds    = errorsmod.Register(errCodespace, 18, "insufficient funds")
	ErrZeroBalance          = errorsmod.Register(errCodespace, 19, "zero balance")
	ErrZeroAmount           = errorsmod.Register(errCodespace, 20, "zero amount")
	ErrWithdrawalNotReady   = errorsmod.Register(errCodespace, 21, "withdrawal not ready")
	ErrWithdrawalsPaused    = errorsmod.Register(errCodespace, 22, "withdrawals paused")
	ErrWithdrawalsNotPaused = errorsmod.Register(errCodespace, 23, "withdrawals not paused")
	ErrEnginePaused         = errorsmod.Register(errCodespace, 24, "engine paused")
	ErrEngineNotPaused      = errorsmod.Register(errCodespace, 25, "engine not paused")
	ErrOverflow             = errorsmod.Register(errCodespace, 26, "arithmetic overflow")
)
