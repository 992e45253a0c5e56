package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

func createGame(st *state.State, msg codec.GameCreateTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireOperator(st, msg.Creator); err != nil {
		return nil, err
	}
	if len(msg.Meta) == 0 {
		return nil, errorsmod.Wrap(ErrInvalidMetadata, "empty meta blob")
	}

	id := st.NextGameID
	next, err := addUint64Checked(id, 1, "nextGameId")
	if err != nil {
		return nil, err
	}
	st.NextGameID = next
	st.Games[id] = &state.Game{
		ID:           id,
		Creator:      msg.Creator,
		Meta:         append([]byte(nil), msg.Meta...),
		FeeBase:      msg.FeeBase,
		Active:       true,
		NextGuessSeq: 1,
	}

	return okEvent("GameCreated", map[string]string{
		"gameId":  fmt.Sprintf("%d", id),
		"creator": msg.Creator,
		"feeBase": fmt.Sprintf("%d", msg.FeeBase),
	}), nil
}

func submitGuess(st *state.State, tr Treasury, msg codec.GameSubmitGuessTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if msg.Player == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing player")
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, errorsmod.Wrapf(ErrGameNotFound, "game %d", msg.GameID)
	}
	if !g.Active {
		return nil, errorsmod.Wrapf(ErrGameInactive, "game %d", msg.GameID)
	}
	if len(msg.Payload) == 0 || len(msg.Meta) == 0 {
		return nil, errorsmod.Wrap(ErrInvalidPayload, "empty payload or meta blob")
	}

	seq := g.NextGuessSeq
	fee, err := feeAtSequence(g, seq)
	if err != nil {
		return nil, err
	}
	// Pre-validate every mutation so nothing can fail once the fee has been
	// collected.
	newPot, err := addUint64Checked(g.Pot, fee, "pot")
	if err != nil {
		return nil, err
	}
	nextSeq, err := addUint64Checked(seq, 1, "nextGuessSeq")
	if err != nil {
		return nil, err
	}

	// The fee must actually land in escrow before the guess exists; this is
	// the one interaction that precedes the state write.
	if err := tr.TransferIn(st, msg.Player, fee); err != nil {
		return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
	}

	g.Guesses = append(g.Guesses, &state.GuessRecord{
		ID:               seq,
		Owner:            msg.Player,
		Payload:          append([]byte(nil), msg.Payload...),
		Meta:             append([]byte(nil), msg.Meta...),
		SequenceAtCharge: seq,
		Fee:              fee,
	})
	g.NextGuessSeq = nextSeq
	g.Pot = newPot

	res := okEvent("GuessSubmitted", map[string]string{
		"gameId":  fmt.Sprintf("%d", msg.GameID),
		"guessId": fmt.Sprintf("%d", seq),
		"owner":   msg.Player,
		"fee":     fmt.Sprintf("%d", fee),
		"pot":     fmt.Sprintf("%d", newPot),
	})

	// Pot ceiling: deactivate the game and trip the withdrawal latch. The
	// latch is one-way; only a guardian unpauses.
	if st.Params.MaxPot != 0 && newPot >= st.Params.MaxPot {
		g.Active = false
		res.Events = append(res.Events, event("GameDeactivated", map[string]string{
			"gameId": fmt.Sprintf("%d", msg.GameID),
			"pot":    fmt.Sprintf("%d", newPot),
			"maxPot": fmt.Sprintf("%d", st.Params.MaxPot),
		}))
		if !st.WithdrawalsPaused {
			st.WithdrawalsPaused = true
			res.Events = append(res.Events, event("WithdrawalsPaused", map[string]string{
				"reason": "potCap",
				"gameId": fmt.Sprintf("%d", msg.GameID),
			}))
		}
	}
	return res, nil
}
