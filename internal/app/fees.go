package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

// feeAtSequence prices the k-th guess of a game: feeBase + feeDelta*(k-1).
// Schedule changes never reprice guesses that were already charged.
func feeAtSequence(g *state.Game, seq uint64) (uint64, error) {
	if seq == 0 {
		return 0, errorsmod.Wrap(ErrInvalidRequest, "guess sequence is 1-based")
	}
	step, err := mulUint64Checked(g.FeeDelta, seq-1, "fee step")
	if err != nil {
		return 0, err
	}
	return addUint64Checked(g.FeeBase, step, "fee")
}

// currentFee prices the next guess to be submitted.
func currentFee(g *state.Game) (uint64, error) {
	return feeAtSequence(g, g.NextGuessSeq)
}

func setFeeBase(st *state.State, msg codec.GameSetFeeBaseTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireOperator(st, msg.Caller); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, errorsmod.Wrapf(ErrGameNotFound, "game %d", msg.GameID)
	}
	g.FeeBase = msg.FeeBase
	return okEvent("FeeBaseUpdated", map[string]string{
		"gameId":  fmt.Sprintf("%d", msg.GameID),
		"feeBase": fmt.Sprintf("%d", msg.FeeBase),
	}), nil
}

func setFeeDelta(st *state.State, msg codec.GameSetFeeDeltaTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireOperator(st, msg.Caller); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, errorsmod.Wrapf(ErrGameNotFound, "game %d", msg.GameID)
	}
	g.FeeDelta = msg.FeeDelta
	return okEvent("FeeDeltaUpdated", map[string]string{
		"gameId":   fmt.Sprintf("%d", msg.GameID),
		"feeDelta": fmt.Sprintf("%d", msg.FeeDelta),
	}), nil
}
