package app

import (
	"fmt"
	"sort"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const maxShareBps = uint32(10000)

func shareStateFor(st *state.State, viewer string, gameID uint64) *state.ShareState {
	perGame := st.Shares[viewer]
	if perGame == nil {
		return nil
	}
	return perGame[gameID]
}

func ensureShareState(st *state.State, viewer string, gameID uint64) *state.ShareState {
	perGame := st.Shares[viewer]
	if perGame == nil {
		perGame = map[uint64]*state.ShareState{}
		st.Shares[viewer] = perGame
	}
	ss := perGame[gameID]
	if ss == nil {
		ss = &state.ShareState{}
		perGame[gameID] = ss
	}
	return ss
}

// releaseReservation returns a deal's bps to the free pool. The subtraction
// is floor-clamped so a drifted book can never underflow.
func releaseReservation(ss *state.ShareState, bps uint32) {
	if ss.ReservedBps >= bps {
		ss.ReservedBps -= bps
	} else {
		ss.ReservedBps = 0
	}
}

// removePendingDeal drops a deal from its owner's pending index via
// swap-with-last, patching the moved deal's stored position.
func removePendingDeal(st *state.State, d *state.Deal) {
	ids := st.PendingByOwner[d.Owner]
	pos := d.OwnerPendingPos
	if pos < 0 || pos >= len(ids) || ids[pos] != d.ID {
		return
	}
	last := len(ids) - 1
	if pos != last {
		moved := ids[last]
		ids[pos] = moved
		if md := st.Deals[moved]; md != nil {
			md.OwnerPendingPos = pos
		}
	}
	ids = ids[:last]
	if len(ids) == 0 {
		delete(st.PendingByOwner, d.Owner)
	} else {
		st.PendingByOwner[d.Owner] = ids
	}
	d.OwnerPendingPos = 0
}

func proposeDeal(st *state.State, msg codec.DealProposeTx, now int64) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	if msg.Viewer == "" || msg.Owner == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing viewer/owner")
	}
	if msg.ShareBps == 0 || msg.ShareBps > maxShareBps {
		return nil, errorsmod.Wrapf(ErrInvalidShareBps, "got %d, want 1..%d", msg.ShareBps, maxShareBps)
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, errorsmod.Wrapf(ErrGameNotFound, "game %d", msg.GameID)
	}
	rec := g.Guess(msg.GuessID)
	if rec == nil {
		return nil, errorsmod.Wrapf(ErrInvalidGuessReference, "guess %d not in game %d", msg.GuessID, msg.GameID)
	}
	if rec.Owner != msg.Owner {
		return nil, errorsmod.Wrapf(ErrInvalidGuessReference, "guess %d owned by %q, not %q", msg.GuessID, rec.Owner, msg.Owner)
	}

	ss := ensureShareState(st, msg.Viewer, msg.GameID)
	projected := uint64(ss.AcceptedBps) + uint64(ss.ReservedBps) + uint64(msg.ShareBps)
	if projected > uint64(maxShareBps) {
		return nil, errorsmod.Wrapf(ErrSharesExceeded, "accepted=%d reserved=%d attempted=%d",
			ss.AcceptedBps, ss.ReservedBps, msg.ShareBps)
	}

	id := st.NextDealID
	next, err := addUint64Checked(id, 1, "nextDealId")
	if err != nil {
		return nil, err
	}
	st.NextDealID = next

	d := &state.Deal{
		ID:              id,
		GameID:          msg.GameID,
		GuessID:         msg.GuessID,
		Owner:           msg.Owner,
		Viewer:          msg.Viewer,
		ShareBps:        msg.ShareBps,
		Status:          state.DealPending,
		CreatedAt:       now,
		OwnerPendingPos: len(st.PendingByOwner[msg.Owner]),
	}
	st.Deals[id] = d
	st.PendingByOwner[msg.Owner] = append(st.PendingByOwner[msg.Owner], id)
	ss.ReservedBps += msg.ShareBps

	return okEvent("DealProposed", map[string]string{
		"dealId":   fmt.Sprintf("%d", id),
		"gameId":   fmt.Sprintf("%d", msg.GameID),
		"guessId":  fmt.Sprintf("%d", msg.GuessID),
		"owner":    msg.Owner,
		"viewer":   msg.Viewer,
		"shareBps": fmt.Sprintf("%d", msg.ShareBps),
	}), nil
}

func acceptDeal(st *state.State, msg codec.DealAcceptTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	d := st.Deals[msg.DealID]
	if d == nil {
		return nil, errorsmod.Wrapf(ErrDealNotFound, "deal %d", msg.DealID)
	}
	if d.Terminal() {
		return nil, errorsmod.Wrapf(ErrAlreadyResolved, "deal %d is %s", d.ID, d.Status)
	}
	if msg.Owner != d.Owner {
		return nil, errorsmod.Wrapf(ErrNotRecipient, "deal %d belongs to %q", d.ID, d.Owner)
	}

	ss := ensureShareState(st, d.Viewer, d.GameID)
	releaseReservation(ss, d.ShareBps)
	newAccepted := uint64(ss.AcceptedBps) + uint64(d.ShareBps)
	if newAccepted > uint64(maxShareBps) {
		// Unreachable while the share book is consistent; the staged tx is
		// discarded wholesale, so the release above does not leak.
		return nil, errorsmod.Wrapf(ErrSharesExceeded, "accepted=%d attempted=%d", ss.AcceptedBps, d.ShareBps)
	}
	ss.AcceptedBps = uint32(newAccepted)
	ss.AcceptedDeals = append(ss.AcceptedDeals, d.ID)

	removePendingDeal(st, d)
	d.Status = state.DealAccepted

	return okEvent("DealAccepted", map[string]string{
		"dealId":      fmt.Sprintf("%d", d.ID),
		"gameId":      fmt.Sprintf("%d", d.GameID),
		"owner":       d.Owner,
		"viewer":      d.Viewer,
		"shareBps":    fmt.Sprintf("%d", d.ShareBps),
		"acceptedBps": fmt.Sprintf("%d", ss.AcceptedBps),
	}), nil
}

func rejectDeal(st *state.State, msg codec.DealRejectTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	d := st.Deals[msg.DealID]
	if d == nil {
		return nil, errorsmod.Wrapf(ErrDealNotFound, "deal %d", msg.DealID)
	}
	if d.Terminal() {
		return nil, errorsmod.Wrapf(ErrAlreadyResolved, "deal %d is %s", d.ID, d.Status)
	}
	if msg.Owner != d.Owner {
		return nil, errorsmod.Wrapf(ErrNotRecipient, "deal %d belongs to %q", d.ID, d.Owner)
	}

	releaseReservation(ensureShareState(st, d.Viewer, d.GameID), d.ShareBps)
	removePendingDeal(st, d)
	d.Status = state.DealRejected

	return okEvent("DealRejected", map[string]string{
		"dealId": fmt.Sprintf("%d", d.ID),
		"owner":  d.Owner,
		"viewer": d.Viewer,
	}), nil
}

func cancelDeal(st *state.State, msg codec.DealCancelTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireNotPaused(st); err != nil {
		return nil, err
	}
	d := st.Deals[msg.DealID]
	if d == nil {
		return nil, errorsmod.Wrapf(ErrDealNotFound, "deal %d", msg.DealID)
	}
	if d.Terminal() {
		return nil, errorsmod.Wrapf(ErrAlreadyResolved, "deal %d is %s", d.ID, d.Status)
	}
	if msg.Viewer != d.Viewer {
		return nil, errorsmod.Wrapf(ErrNotViewer, "deal %d proposed by %q", d.ID, d.Viewer)
	}

	releaseReservation(ensureShareState(st, d.Viewer, d.GameID), d.ShareBps)
	removePendingDeal(st, d)
	d.Status = state.DealCancelled

	return okEvent("DealCancelled", map[string]string{
		"dealId": fmt.Sprintf("%d", d.ID),
		"owner":  d.Owner,
		"viewer": d.Viewer,
	}), nil
}

// pendingDealsForOwner resolves the owner's pending index into deals, in
// index order.
func pendingDealsForOwner(st *state.State, owner string) []*state.Deal {
	ids := st.PendingByOwner[owner]
	out := make([]*state.Deal, 0, len(ids))
	for _, id := range ids {
		if d := st.Deals[id]; d != nil {
			out = append(out, d)
		}
	}
	return out
}

// acceptedDealsForViewer lists a viewer's accepted deals in a game in
// ascending deal-id order.
func acceptedDealsForViewer(st *state.State, viewer string, gameID uint64) []*state.Deal {
	ss := shareStateFor(st, viewer, gameID)
	if ss == nil {
		return nil
	}
	out := make([]*state.Deal, 0, len(ss.AcceptedDeals))
	for _, id := range ss.AcceptedDeals {
		if d := st.Deals[id]; d != nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
