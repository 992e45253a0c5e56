package app

import (
	"math"
	"strings"
	"testing"

	"github.com/Layr-Labs/guess-game/internal/state"
)

func TestOverflow_BankSendCreditOverflowRollsBackDebit(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	registerTestAccount(t, a, height, "alice")
	registerTestAccount(t, a, height, "bob")

	a.st.Accounts["alice"] = 100
	a.st.Accounts["bob"] = ^uint64(0)

	res := a.deliverTx(txBytesSigned(t, "bank/send", map[string]any{
		"from":   "alice",
		"to":     "bob",
		"amount": uint64(1),
	}, "alice"), height, 0)
	if res.Code == 0 {
		t.Fatalf("expected overflow failure")
	}
	if got := a.st.Balance("alice"); got != 100 {
		t.Fatalf("alice balance mutated on failed overflow send: %d", got)
	}
	if got := a.st.Balance("bob"); got != ^uint64(0) {
		t.Fatalf("bob balance mutated on failed overflow send: %d", got)
	}
}

func TestOverflow_PoisonedPotRejectsSubmit(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	gameID := setupGame(t, a, 5, 0, "alice")

	a.st.Games[gameID].Pot = ^uint64(0)

	res := a.deliverTx(txBytesSigned(t, "game/submit_guess", map[string]any{
		"player":  "alice",
		"gameId":  gameID,
		"payload": []byte("42"),
		"meta":    []byte("round 1"),
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrOverflow)
	if !strings.Contains(res.Log, "pot overflows uint64") {
		t.Fatalf("expected pot overflow log, got %q", res.Log)
	}

	g := a.st.Games[gameID]
	if g.Pot != ^uint64(0) || len(g.Guesses) != 0 || g.NextGuessSeq != 1 {
		t.Fatalf("failed submit mutated game: pot=%d guesses=%d seq=%d", g.Pot, len(g.Guesses), g.NextGuessSeq)
	}
	if got := a.st.Balance("alice"); got != 1_000_000 {
		t.Fatalf("failed submit charged the player: %d", got)
	}
}

func TestOverflow_FeeScheduleAtCeiling(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	gameID := setupGame(t, a, 1, 0, "alice")
	mustOk(t, a.deliverTx(txBytesSigned(t, "game/set_fee_delta", map[string]any{
		"caller":   testOperator,
		"gameId":   gameID,
		"feeDelta": ^uint64(0),
	}, testOperator), height, 0))

	// First guess still prices at feeBase; the second would need
	// feeBase + feeDelta and overflows.
	submitTestGuess(t, a, "alice", gameID)

	res := a.deliverTx(txBytesSigned(t, "game/submit_guess", map[string]any{
		"player":  "alice",
		"gameId":  gameID,
		"payload": []byte("42"),
		"meta":    []byte("round 1"),
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrOverflow)

	g := a.st.Games[gameID]
	if g.Pot != 1 || g.NextGuessSeq != 2 || len(g.Guesses) != 1 {
		t.Fatalf("failed submit mutated game: pot=%d seq=%d guesses=%d", g.Pot, g.NextGuessSeq, len(g.Guesses))
	}
}

func TestOverflow_NextGameIDAtCeiling(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, testOperator)

	a.st.NextGameID = ^uint64(0)

	res := a.deliverTx(txBytesSigned(t, "game/create", map[string]any{
		"creator": testOperator,
		"meta":    []byte("guess the number"),
		"feeBase": 1,
	}, testOperator), height, 0)
	mustRejectWith(t, res, ErrOverflow)
	if a.st.NextGameID != ^uint64(0) {
		t.Fatalf("next game id mutated on overflow: %d", a.st.NextGameID)
	}
	if len(a.st.Games) != 0 {
		t.Fatalf("game created despite next game id overflow")
	}
}

func TestOverflow_NextDealIDAtCeiling(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	gameID := setupGame(t, a, 5, 0, "alice", "bob")
	submitTestGuess(t, a, "alice", gameID)

	a.st.NextDealID = ^uint64(0)

	res := a.deliverTx(txBytesSigned(t, "deal/propose", map[string]any{
		"viewer":   "bob",
		"gameId":   gameID,
		"guessId":  1,
		"owner":    "alice",
		"shareBps": 1000,
	}, "bob"), height, 0)
	mustRejectWith(t, res, ErrOverflow)
	if a.st.NextDealID != ^uint64(0) {
		t.Fatalf("next deal id mutated on overflow: %d", a.st.NextDealID)
	}
	if len(a.st.Deals) != 0 {
		t.Fatalf("deal created despite next deal id overflow")
	}
	if _, reserved := viewerShares(a, "bob", gameID); reserved != 0 {
		t.Fatalf("reservation taken despite next deal id overflow: %d", reserved)
	}
}

func TestOverflow_WithdrawalFoldAtCeiling(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, "alice")

	a.st.Balances["alice"] = 1
	a.st.PendingWithdrawals["alice"] = &state.PendingWithdrawal{Amount: ^uint64(0), AvailableAt: 0}

	res := a.deliverTx(txBytesSigned(t, "withdraw/request", map[string]any{
		"identity": "alice",
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrOverflow)

	if got := a.st.Winnings("alice"); got != 1 {
		t.Fatalf("failed fold drained winnings: %d", got)
	}
	if p := a.st.PendingWithdrawals["alice"]; p == nil || p.Amount != ^uint64(0) {
		t.Fatalf("failed fold mutated pending record: %+v", p)
	}
}

func TestOverflow_AvailableAtHugeDelay(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, testOperator)
	registerTestAccount(t, a, height, testGuardian)
	registerTestAccount(t, a, height, "alice")
	mintTestTokens(t, a, height, "alice", 1000)
	settleWinnings(t, a, "alice", 40)

	mustOk(t, a.deliverTx(txBytesSigned(t, "withdraw/set_delay", map[string]any{
		"caller":    testGuardian,
		"delaySecs": uint64(math.MaxInt64),
	}, testGuardian), height, 0))

	res := a.deliverTx(txBytesSigned(t, "withdraw/request", map[string]any{
		"identity": "alice",
	}, "alice"), height, 1)
	mustRejectWith(t, res, ErrOverflow)
	if !strings.Contains(res.Log, "availableAt overflows int64") {
		t.Fatalf("expected availableAt overflow log, got %q", res.Log)
	}
	if got := a.st.Winnings("alice"); got != 40 {
		t.Fatalf("failed request drained winnings: %d", got)
	}
	if a.st.PendingWithdrawals["alice"] != nil {
		t.Fatalf("failed request left a pending record")
	}
}

func TestOverflow_EscrowAtCeilingRollsBackFeeDebit(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	gameID := setupGame(t, a, 5, 0, "alice")

	a.st.Accounts[escrowAccount] = ^uint64(0)

	res := a.deliverTx(txBytesSigned(t, "game/submit_guess", map[string]any{
		"player":  "alice",
		"gameId":  gameID,
		"payload": []byte("42"),
		"meta":    []byte("round 1"),
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrInsufficientFunds)

	if got := a.st.Balance("alice"); got != 1_000_000 {
		t.Fatalf("failed escrow credit charged the player: %d", got)
	}
	if g := a.st.Games[gameID]; g.Pot != 0 || len(g.Guesses) != 0 {
		t.Fatalf("failed escrow credit left a guess: pot=%d guesses=%d", g.Pot, len(g.Guesses))
	}
}
