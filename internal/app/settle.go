package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

// applySettlement zeroes the pot, deactivates the game and credits each leg
// to the winnings ledger. Callers have already proven that the legs sum to
// the pot exactly. Credits are staged first so a mid-apply overflow cannot
// leave the book half written.
func applySettlement(st *state.State, g *state.Game, legs []payout, head abci.Event) (*abci.ExecTxResult, error) {
	staged := map[string]uint64{}
	for _, leg := range legs {
		base, ok := staged[leg.Identity]
		if !ok {
			base = st.Winnings(leg.Identity)
		}
		next, err := addUint64Checked(base, leg.Amount, "winnings")
		if err != nil {
			return nil, err
		}
		staged[leg.Identity] = next
	}

	g.Pot = 0
	g.Active = false

	events := []abci.Event{head}
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		st.Balances[leg.Identity] = staged[leg.Identity]
		events = append(events, event("WinningsCredited", map[string]string{
			"gameId":   fmt.Sprintf("%d", g.ID),
			"identity": leg.Identity,
			"amount":   fmt.Sprintf("%d", leg.Amount),
		}))
	}
	return okEvents(events...), nil
}

// finalizeGame settles a game against an explicit split. The split must
// account for every token in the pot; partial and padded splits are refused.
func finalizeGame(st *state.State, msg codec.GameFinalizeTx) (*abci.ExecTxResult, error) {
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
	if len(msg.Recipients) != len(msg.Amounts) {
		return nil, errorsmod.Wrapf(ErrLengthMismatch, "recipients=%d amounts=%d",
			len(msg.Recipients), len(msg.Amounts))
	}

	sum := sdkmath.ZeroInt()
	legs := make([]payout, 0, len(msg.Recipients))
	for i, identity := range msg.Recipients {
		if identity == "" {
			return nil, errorsmod.Wrapf(ErrInvalidRequest, "empty recipient at index %d", i)
		}
		sum = sum.Add(sdkmath.NewIntFromUint64(msg.Amounts[i]))
		legs = append(legs, payout{Identity: identity, Amount: msg.Amounts[i]})
	}
	if !sum.Equal(sdkmath.NewIntFromUint64(g.Pot)) {
		return nil, errorsmod.Wrapf(ErrSettlementSumMismatch, "pot=%d sum=%s", g.Pot, sum)
	}

	head := event("GameFinalized", map[string]string{
		"gameId":     fmt.Sprintf("%d", g.ID),
		"pot":        fmt.Sprintf("%d", g.Pot),
		"recipients": fmt.Sprintf("%d", len(legs)),
	})
	return applySettlement(st, g, legs, head)
}

// finalizeGameToWinner settles a game by routing the whole pot to one winner
// and then splitting it across the game's accepted deal graph.
func finalizeGameToWinner(st *state.State, msg codec.GameFinalizeWinnerTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if err := requireOperator(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Winner == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing winner")
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, errorsmod.Wrapf(ErrGameNotFound, "game %d", msg.GameID)
	}

	legs := distributeWinnings(st, g.ID, msg.Winner, g.Pot)
	head := event("GameFinalized", map[string]string{
		"gameId": fmt.Sprintf("%d", g.ID),
		"pot":    fmt.Sprintf("%d", g.Pot),
		"winner": msg.Winner,
	})
	return applySettlement(st, g, legs, head)
}
