package app

import (
	"fmt"
	"math"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

func requireWithdrawalsOpen(st *state.State) error {
	if st.WithdrawalsPaused {
		return errorsmod.Wrap(ErrWithdrawalsPaused, "withdrawals paused")
	}
	return nil
}

// requestWithdrawal locks the caller's whole winnings balance behind the
// configured delay. An unclaimed earlier request is folded back into the
// balance first, so re-requesting reissues one record for the combined
// amount under a fresh availableAt.
func requestWithdrawal(st *state.State, msg codec.WithdrawRequestTx, now int64) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireWithdrawalsOpen(st); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing identity")
	}

	amount := st.Winnings(msg.Identity)
	if prior := st.PendingWithdrawals[msg.Identity]; prior != nil && prior.Amount != 0 {
		folded, err := addUint64Checked(amount, prior.Amount, "withdrawal")
		if err != nil {
			return nil, err
		}
		amount = folded
	}
	if amount == 0 {
		return nil, errorsmod.Wrapf(ErrZeroBalance, "no winnings for %q", msg.Identity)
	}
	availableAt, err := addInt64AndU64Checked(now, st.Params.WithdrawalDelaySecs, "availableAt")
	if err != nil {
		return nil, err
	}

	st.Balances[msg.Identity] = 0
	st.PendingWithdrawals[msg.Identity] = &state.PendingWithdrawal{
		Amount:      amount,
		AvailableAt: availableAt,
	}

	return okEvent("WithdrawalRequested", map[string]string{
		"identity":    msg.Identity,
		"amount":      fmt.Sprintf("%d", amount),
		"availableAt": fmt.Sprintf("%d", availableAt),
	}), nil
}

// claimWithdrawal pays out a matured request through the treasury. The
// pending record is cleared before the treasury call; a transfer that fails
// aborts the tx, so the record comes back with the rest of the staged state.
func claimWithdrawal(st *state.State, tr Treasury, msg codec.WithdrawClaimTx, now int64) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireWithdrawalsOpen(st); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing identity")
	}

	pending := st.PendingWithdrawals[msg.Identity]
	if pending == nil || pending.Amount == 0 {
		return nil, errorsmod.Wrapf(ErrZeroAmount, "no pending withdrawal for %q", msg.Identity)
	}
	if now < pending.AvailableAt {
		return nil, errorsmod.Wrapf(ErrWithdrawalNotReady, "available at %d, now %d", pending.AvailableAt, now)
	}

	amount := pending.Amount
	delete(st.PendingWithdrawals, msg.Identity)
	if err := tr.TransferOut(st, msg.Identity, amount); err != nil {
		// Keep the collaborator's message; unregistered errors would be
		// redacted to "internal" on the way out.
		return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
	}

	return okEvent("WithdrawalClaimed", map[string]string{
		"identity": msg.Identity,
		"amount":   fmt.Sprintf("%d", amount),
	}), nil
}

func setWithdrawalDelay(st *state.State, msg codec.WithdrawSetDelayTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.DelaySecs > uint64(math.MaxInt64) {
		return nil, errorsmod.Wrapf(ErrOverflow, "delaySecs %d exceeds int64 range", msg.DelaySecs)
	}
	st.Params.WithdrawalDelaySecs = msg.DelaySecs

	return okEvent("WithdrawalDelayUpdated", map[string]string{
		"delaySecs": fmt.Sprintf("%d", msg.DelaySecs),
	}), nil
}

func pauseWithdrawals(st *state.State, msg codec.WithdrawPauseTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if st.WithdrawalsPaused {
		return nil, errorsmod.Wrap(ErrWithdrawalsPaused, "already paused")
	}
	st.WithdrawalsPaused = true

	return okEvent("WithdrawalsPaused", map[string]string{
		"reason": "guardian",
	}), nil
}

func unpauseWithdrawals(st *state.State, msg codec.WithdrawUnpauseTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if !st.WithdrawalsPaused {
		return nil, errorsmod.Wrap(ErrWithdrawalsNotPaused, "not paused")
	}
	st.WithdrawalsPaused = false

	return okEvent("WithdrawalsUnpaused", nil), nil
}
