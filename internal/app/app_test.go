package app

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const (
	testOperator = "op"
	testGuardian = "guard"
)

func defaultTestConfig() state.Config {
	return state.Config{
		Operators: []string{testOperator},
		Guardians: []string{testGuardian},
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

// testNonceCounter feeds txBytesSigned. A process-global monotonic counter
// keeps nonces strictly increasing per signer without per-test bookkeeping.
var testNonceCounter uint64

// testEd25519Key derives a deterministic keypair from the identity so every
// helper signs with the same key a prior registerTestAccount announced.
func testEd25519Key(id string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := sha256.Sum256([]byte("guess-test-key|" + id))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

func txBytesSigned(t *testing.T, typ string, value any, signer string) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	nonce := strconv.FormatUint(atomic.AddUint64(&testNonceCounter, 1), 10)
	_, priv := testEd25519Key(signer)
	sig := ed25519.Sign(priv, txAuthSignBytesV1(typ, valueBytes, nonce, signer))
	return mustMarshal(t, codec.TxEnvelope{
		Type:   typ,
		Value:  valueBytes,
		Nonce:  nonce,
		Signer: signer,
		Sig:    sig,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func parseU64(t *testing.T, s string) uint64 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse uint64 %q: %v", s, err)
	}
	return n
}

func newTestApp(t *testing.T) *GuessApp {
	t.Helper()
	return newTestAppWithConfig(t, defaultTestConfig())
}

func newTestAppWithConfig(t *testing.T, cfg state.Config) *GuessApp {
	t.Helper()
	a, err := New(t.TempDir(), cfg, log.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mustRejectWith(t *testing.T, res *abci.ExecTxResult, want *errorsmod.Error) *abci.ExecTxResult {
	t.Helper()
	if res.Code == 0 {
		t.Fatalf("expected rejection with %q, got ok", want.Error())
	}
	if res.Code != want.ABCICode() {
		t.Fatalf("expected code=%d (%s), got code=%d log=%q", want.ABCICode(), want.Error(), res.Code, res.Log)
	}
	return res
}

func mintTestTokens(t *testing.T, a *GuessApp, height int64, to string, amount uint64) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "bank/mint", map[string]any{"to": to, "amount": amount}), height, 0))
}

func registerTestAccount(t *testing.T, a *GuessApp, height int64, id string) {
	t.Helper()
	pub, _ := testEd25519Key(id)
	mustOk(t, a.deliverTx(txBytesSigned(t, "auth/register_account", map[string]any{
		"account": id,
		"pubKey":  []byte(pub),
	}, id), height, 0))
}

func createTestGame(t *testing.T, a *GuessApp, feeBase uint64) uint64 {
	t.Helper()
	const height = int64(1)
	res := mustOk(t, a.deliverTx(txBytesSigned(t, "game/create", map[string]any{
		"creator": testOperator,
		"meta":    []byte("guess the number"),
		"feeBase": feeBase,
	}, testOperator), height, 0))
	return parseU64(t, attr(findEvent(res.Events, "GameCreated"), "gameId"))
}

// setupGame registers the operator and the players, funds each player, and
// creates one game with the given fee schedule.
func setupGame(t *testing.T, a *GuessApp, feeBase, feeDelta uint64, players ...string) uint64 {
	t.Helper()
	const height = int64(1)

	registerTestAccount(t, a, height, testOperator)
	for _, p := range players {
		registerTestAccount(t, a, height, p)
		mintTestTokens(t, a, height, p, 1_000_000)
	}
	gameID := createTestGame(t, a, feeBase)
	if feeDelta != 0 {
		mustOk(t, a.deliverTx(txBytesSigned(t, "game/set_fee_delta", map[string]any{
			"caller":   testOperator,
			"gameId":   gameID,
			"feeDelta": feeDelta,
		}, testOperator), height, 0))
	}
	return gameID
}

func submitTestGuess(t *testing.T, a *GuessApp, player string, gameID uint64) *abci.ExecTxResult {
	t.Helper()
	const height = int64(1)
	return mustOk(t, a.deliverTx(txBytesSigned(t, "game/submit_guess", map[string]any{
		"player":  player,
		"gameId":  gameID,
		"payload": []byte("42"),
		"meta":    []byte("round 1"),
	}, player), height, 0))
}

// settleWinnings runs amount through a throwaway game so the player ends up
// with escrow-backed winnings, the way settlement produces them.
func settleWinnings(t *testing.T, a *GuessApp, player string, amount uint64) {
	t.Helper()
	const height = int64(1)

	gameID := createTestGame(t, a, amount)
	submitTestGuess(t, a, player, gameID)
	mustOk(t, a.deliverTx(txBytesSigned(t, "game/finalize", map[string]any{
		"caller":     testOperator,
		"gameId":     gameID,
		"recipients": []string{player},
		"amounts":    []uint64{amount},
	}, testOperator), height, 0))
}

// ---- App surface ----

func TestDeliverTx_RejectsInvalidEnvelope(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	res := a.deliverTx([]byte("{not json"), height, 0)
	if res.Code == 0 {
		t.Fatalf("expected invalid tx json to be rejected")
	}

	res = a.deliverTx(txBytes(t, "guess/unknown", map[string]any{}), height, 0)
	mustRejectWith(t, res, ErrInvalidRequest)
	if !strings.Contains(res.Log, "unknown tx type") {
		t.Fatalf("expected unknown tx type log, got %q", res.Log)
	}
}

func TestFinalizeBlock_PersistsAcrossRestart(t *testing.T) {
	home := t.TempDir()
	cfg := defaultTestConfig()

	a, err := New(home, cfg, log.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	resp, err := a.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{
		Height: 3,
		Time:   time.Unix(100, 0),
		Txs: [][]byte{
			txBytes(t, "bank/mint", map[string]any{"to": "alice", "amount": 500}),
		},
	})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if len(resp.TxResults) != 1 || resp.TxResults[0].Code != 0 {
		t.Fatalf("unexpected tx results: %+v", resp.TxResults)
	}
	if _, err := a.Commit(ctx, &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	b, err := New(home, cfg, log.NewNopLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, err := b.Info(ctx, &abci.InfoRequest{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.LastBlockHeight != 3 {
		t.Fatalf("expected height 3 after restart, got %d", info.LastBlockHeight)
	}
	if string(info.LastBlockAppHash) != string(resp.AppHash) {
		t.Fatalf("app hash diverged across restart: %x vs %x", info.LastBlockAppHash, resp.AppHash)
	}
	if got := b.st.Balance("alice"); got != 500 {
		t.Fatalf("expected minted balance to survive restart, got %d", got)
	}
}

func TestQuery_CorePaths(t *testing.T) {
	a := newTestApp(t)
	gameID := setupGame(t, a, 5, 0, "alice")
	submitTestGuess(t, a, "alice", gameID)

	ctx := context.Background()

	params, err := a.Query(ctx, &abci.QueryRequest{Path: "/params"})
	if err != nil || params.Code != 0 {
		t.Fatalf("params query failed: %v %+v", err, params)
	}

	games, err := a.Query(ctx, &abci.QueryRequest{Path: "/games"})
	if err != nil || games.Code != 0 {
		t.Fatalf("games query failed: %v %+v", err, games)
	}
	var ids []uint64
	if err := json.Unmarshal(games.Value, &ids); err != nil {
		t.Fatalf("decode games: %v", err)
	}
	if len(ids) != 1 || ids[0] != gameID {
		t.Fatalf("unexpected game ids: %v", ids)
	}

	game, err := a.Query(ctx, &abci.QueryRequest{Path: "/game/1"})
	if err != nil || game.Code != 0 {
		t.Fatalf("game query failed: %v %+v", err, game)
	}
	var g state.Game
	if err := json.Unmarshal(game.Value, &g); err != nil {
		t.Fatalf("decode game: %v", err)
	}
	if g.Pot != 5 || !g.Active {
		t.Fatalf("unexpected game view: pot=%d active=%v", g.Pot, g.Active)
	}

	fee, err := a.Query(ctx, &abci.QueryRequest{Path: "/fee/1"})
	if err != nil || fee.Code != 0 {
		t.Fatalf("fee query failed: %v %+v", err, fee)
	}
	var feeView struct {
		GameID uint64 `json:"gameId"`
		Fee    uint64 `json:"fee"`
	}
	if err := json.Unmarshal(fee.Value, &feeView); err != nil {
		t.Fatalf("decode fee: %v", err)
	}
	if feeView.Fee != 5 {
		t.Fatalf("expected flat fee 5, got %d", feeView.Fee)
	}

	guess, err := a.Query(ctx, &abci.QueryRequest{Path: "/guess/1/1"})
	if err != nil || guess.Code != 0 {
		t.Fatalf("guess query failed: %v %+v", err, guess)
	}

	missing, err := a.Query(ctx, &abci.QueryRequest{Path: "/game/99"})
	if err != nil || missing.Code == 0 {
		t.Fatalf("expected missing game to fail")
	}
	unknown, err := a.Query(ctx, &abci.QueryRequest{Path: "/nope"})
	if err != nil || unknown.Code == 0 {
		t.Fatalf("expected unknown path to fail")
	}
}

func TestCheckTx_StructuralOnly(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	res, err := a.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytes(t, "bank/mint", map[string]any{"to": "x", "amount": 1})})
	if err != nil || res.Code != 0 {
		t.Fatalf("expected structural accept: %v %+v", err, res)
	}
	res, err = a.CheckTx(ctx, &abci.CheckTxRequest{Tx: []byte("junk")})
	if err != nil || res.Code == 0 {
		t.Fatalf("expected structural reject: %v %+v", err, res)
	}
}

func TestEnginePause_BlocksMutatingOpsButNotAdmin(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	gameID := setupGame(t, a, 5, 0, "alice")
	registerTestAccount(t, a, height, testGuardian)

	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/pause", map[string]any{
		"caller": testGuardian,
	}, testGuardian), height, 0))

	res := a.deliverTx(txBytesSigned(t, "game/submit_guess", map[string]any{
		"player":  "alice",
		"gameId":  gameID,
		"payload": []byte("42"),
		"meta":    []byte("m"),
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrEnginePaused)

	res = a.deliverTx(txBytesSigned(t, "deal/propose", map[string]any{
		"viewer":   "alice",
		"gameId":   gameID,
		"guessId":  1,
		"owner":    "alice",
		"shareBps": 100,
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrEnginePaused)

	res = a.deliverTx(txBytesSigned(t, "withdraw/request", map[string]any{
		"identity": "alice",
	}, "alice"), height, 0)
	mustRejectWith(t, res, ErrEnginePaused)

	// Bank and admin lanes stay open so the pause can be operated out of.
	mintTestTokens(t, a, height, "bob", 10)
	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/unpause", map[string]any{
		"caller": testGuardian,
	}, testGuardian), height, 0))
	submitTestGuess(t, a, "alice", gameID)
}

func TestAdminPause_StrictTogglesAndGuardianOnly(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, testGuardian)
	registerTestAccount(t, a, height, "mallory")

	res := a.deliverTx(txBytesSigned(t, "admin/pause", map[string]any{
		"caller": "mallory",
	}, "mallory"), height, 0)
	mustRejectWith(t, res, ErrNotGuardian)

	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/pause", map[string]any{"caller": testGuardian}, testGuardian), height, 0))
	res = a.deliverTx(txBytesSigned(t, "admin/pause", map[string]any{"caller": testGuardian}, testGuardian), height, 0)
	mustRejectWith(t, res, ErrEnginePaused)

	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/unpause", map[string]any{"caller": testGuardian}, testGuardian), height, 0))
	res = a.deliverTx(txBytesSigned(t, "admin/unpause", map[string]any{"caller": testGuardian}, testGuardian), height, 0)
	mustRejectWith(t, res, ErrEngineNotPaused)
}

func TestAdminRoles_GrantRevokeRoundTrip(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, testGuardian)
	registerTestAccount(t, a, height, "newop")

	res := mustOk(t, a.deliverTx(txBytesSigned(t, "admin/grant_role", map[string]any{
		"caller":   testGuardian,
		"identity": "newop",
		"role":     "operator",
	}, testGuardian), height, 0))
	if attr(findEvent(res.Events, "RoleGranted"), "identity") != "newop" {
		t.Fatalf("expected RoleGranted event for newop")
	}

	// The fresh operator can create a game.
	mustOk(t, a.deliverTx(txBytesSigned(t, "game/create", map[string]any{
		"creator": "newop",
		"meta":    []byte("m"),
		"feeBase": 1,
	}, "newop"), height, 0))

	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/revoke_role", map[string]any{
		"caller":   testGuardian,
		"identity": "newop",
		"role":     "operator",
	}, testGuardian), height, 0))

	res = a.deliverTx(txBytesSigned(t, "game/create", map[string]any{
		"creator": "newop",
		"meta":    []byte("m"),
		"feeBase": 1,
	}, "newop"), height, 0)
	mustRejectWith(t, res, ErrNotOperator)

	res = a.deliverTx(txBytesSigned(t, "admin/revoke_role", map[string]any{
		"caller":   testGuardian,
		"identity": "newop",
		"role":     "operator",
	}, testGuardian), height, 0)
	mustRejectWith(t, res, ErrInvalidRequest)
}

func TestAdminAuthorizeUpgrade_RecordsTarget(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, testGuardian)

	mustOk(t, a.deliverTx(txBytesSigned(t, "admin/authorize_upgrade", map[string]any{
		"caller": testGuardian,
		"target": "engine/v2",
	}, testGuardian), height, 0))
	if a.st.UpgradeTarget != "engine/v2" {
		t.Fatalf("expected upgrade target recorded, got %q", a.st.UpgradeTarget)
	}
}
