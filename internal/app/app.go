package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const (
	AppVersion uint64 = 1
)

type GuessApp struct {
	*abci.BaseApplication

	home   string
	logger log.Logger

	treasury Treasury

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, cfg state.Config, logger log.Logger) (*GuessApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome, cfg)
	if err != nil {
		return nil, err
	}
	a := &GuessApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger.With("module", "app"),
		treasury:        bankTreasury{},
		st:              st,
		lastHash:        st.AppHash(),
	}
	a.logger.Info("state loaded",
		"height", st.Height,
		"games", len(st.Games),
		"deals", len(st.Deals),
		"maxPot", st.Params.MaxPot)
	return a, nil
}

func (a *GuessApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "guess (v1)",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *GuessApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v1: only structural validation; signatures and nonces are checked at
	// delivery against committed state.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *GuessApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// v1: genesis state comes from the config given to New.
	return &abci.InitChainResponse{}, nil
}

func (a *GuessApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	now := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, now)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *GuessApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		a.logger.Error("state save failed", "err", err)
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *GuessApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ok := func(v any) (*abci.QueryResponse, error) {
		b, _ := json.Marshal(v)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	}
	fail := func(log string) (*abci.QueryResponse, error) {
		return &abci.QueryResponse{Code: 1, Log: log, Height: a.st.Height}, nil
	}

	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/params":
		return ok(map[string]any{
			"params":            a.st.Params,
			"paused":            a.st.Paused,
			"withdrawalsPaused": a.st.WithdrawalsPaused,
		})

	case path == "/games":
		ids := make([]uint64, 0, len(a.st.Games))
		for id := range a.st.Games {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ok(ids)

	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		return ok(map[string]any{"addr": addr, "balance": a.st.Balance(addr)})

	case strings.HasPrefix(path, "/balance/"):
		identity := strings.TrimPrefix(path, "/balance/")
		return ok(map[string]any{"identity": identity, "winnings": a.st.Winnings(identity)})

	case strings.HasPrefix(path, "/game/"):
		id, err := strconv.ParseUint(strings.TrimPrefix(path, "/game/"), 10, 64)
		if err != nil {
			return fail("invalid game id")
		}
		g, okG := a.st.Games[id]
		if !okG {
			return fail("game not found")
		}
		return ok(g)

	case strings.HasPrefix(path, "/fee/"):
		id, err := strconv.ParseUint(strings.TrimPrefix(path, "/fee/"), 10, 64)
		if err != nil {
			return fail("invalid game id")
		}
		g, okG := a.st.Games[id]
		if !okG {
			return fail("game not found")
		}
		fee, err := currentFee(g)
		if err != nil {
			return fail(err.Error())
		}
		return ok(map[string]any{"gameId": id, "fee": fee})

	case strings.HasPrefix(path, "/guess/"):
		parts := strings.Split(strings.TrimPrefix(path, "/guess/"), "/")
		if len(parts) != 2 {
			return fail("want /guess/<gameId>/<guessId>")
		}
		gameID, err1 := strconv.ParseUint(parts[0], 10, 64)
		guessID, err2 := strconv.ParseUint(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return fail("invalid game/guess id")
		}
		rec := a.st.Games[gameID].Guess(guessID)
		if rec == nil {
			return fail("guess not found")
		}
		return ok(rec)

	case strings.HasPrefix(path, "/deal/"):
		id, err := strconv.ParseUint(strings.TrimPrefix(path, "/deal/"), 10, 64)
		if err != nil {
			return fail("invalid deal id")
		}
		d, okD := a.st.Deals[id]
		if !okD {
			return fail("deal not found")
		}
		return ok(d)

	case strings.HasPrefix(path, "/deals/pending/"):
		owner := strings.TrimPrefix(path, "/deals/pending/")
		if owner == "" {
			return fail("want /deals/pending/<owner>")
		}
		return ok(pendingDealsForOwner(a.st, owner))

	case strings.HasPrefix(path, "/deals/accepted/"):
		parts := strings.Split(strings.TrimPrefix(path, "/deals/accepted/"), "/")
		if len(parts) != 2 {
			return fail("want /deals/accepted/<viewer>/<gameId>")
		}
		gameID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fail("invalid game id")
		}
		return ok(acceptedDealsForViewer(a.st, parts[0], gameID))

	case strings.HasPrefix(path, "/shares/"):
		parts := strings.Split(strings.TrimPrefix(path, "/shares/"), "/")
		if len(parts) != 2 {
			return fail("want /shares/<viewer>/<gameId>")
		}
		gameID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fail("invalid game id")
		}
		ss := shareStateFor(a.st, parts[0], gameID)
		if ss == nil {
			ss = &state.ShareState{}
		}
		return ok(ss)

	case strings.HasPrefix(path, "/withdrawal/"):
		identity := strings.TrimPrefix(path, "/withdrawal/")
		pending := a.st.PendingWithdrawals[identity]
		if pending == nil {
			return fail("no pending withdrawal")
		}
		return ok(pending)

	case strings.HasPrefix(path, "/payouts/"):
		parts := strings.Split(strings.TrimPrefix(path, "/payouts/"), "/")
		if len(parts) != 2 {
			return fail("want /payouts/<gameId>/<winner>")
		}
		gameID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return fail("invalid game id")
		}
		g, okG := a.st.Games[gameID]
		if !okG {
			return fail("game not found")
		}
		// Preview of the deal-graph split for the live pot; pure read.
		return ok(distributeWinnings(a.st, gameID, parts[1], g.Pot))

	default:
		return fail("unknown query path")
	}
}

// deliverTx executes one tx against a staged copy of state and swaps the
// copy in only when the whole tx succeeds, so a handler that errors midway
// can never leave a partial write behind.
func (a *GuessApp) deliverTx(txBytes []byte, height int64, now int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errResult(errorsmod.Wrap(ErrInvalidRequest, err.Error()))
	}

	staged, err := a.st.Clone()
	if err != nil {
		return errResult(errorsmod.Wrap(ErrInvalidRequest, err.Error()))
	}

	res, err := routeTx(staged, a.treasury, env, now)
	if err != nil {
		a.logger.Debug("tx rejected", "type", env.Type, "height", height, "err", err)
		return errResult(err)
	}

	a.st = staged
	a.logNotable(res.Events, height)
	return res
}

func routeTx(st *state.State, tr Treasury, env codec.TxEnvelope, now int64) (*abci.ExecTxResult, error) {
	switch env.Type {
	case "bank/mint":
		// Dev faucet, unsigned.
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad bank/mint value")
		}
		return bankMint(st, msg)

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad bank/send value")
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return bankSend(st, msg)

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad auth/register_account value")
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return authRegisterAccount(st, msg)

	case "admin/grant_role":
		var msg codec.AdminGrantRoleTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad admin/grant_role value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return adminGrantRole(st, msg)

	case "admin/revoke_role":
		var msg codec.AdminRevokeRoleTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad admin/revoke_role value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return adminRevokeRole(st, msg)

	case "admin/pause":
		var msg codec.AdminPauseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad admin/pause value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return adminPause(st, msg)

	case "admin/unpause":
		var msg codec.AdminUnpauseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad admin/unpause value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return adminUnpause(st, msg)

	case "admin/authorize_upgrade":
		var msg codec.AdminAuthorizeUpgradeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad admin/authorize_upgrade value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return adminAuthorizeUpgrade(st, msg)

	case "game/create":
		var msg codec.GameCreateTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/create value")
		}
		if err := requireAccountAuth(st, env, msg.Creator); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return createGame(st, msg)

	case "game/set_fee_base":
		var msg codec.GameSetFeeBaseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/set_fee_base value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return setFeeBase(st, msg)

	case "game/set_fee_delta":
		var msg codec.GameSetFeeDeltaTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/set_fee_delta value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return setFeeDelta(st, msg)

	case "game/submit_guess":
		var msg codec.GameSubmitGuessTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/submit_guess value")
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return submitGuess(st, tr, msg)

	case "game/finalize":
		var msg codec.GameFinalizeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/finalize value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return finalizeGame(st, msg)

	case "game/finalize_winner":
		var msg codec.GameFinalizeWinnerTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/finalize_winner value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return finalizeGameToWinner(st, msg)

	case "deal/propose":
		var msg codec.DealProposeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad deal/propose value")
		}
		if err := requireAccountAuth(st, env, msg.Viewer); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return proposeDeal(st, msg, now)

	case "deal/accept":
		var msg codec.DealAcceptTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad deal/accept value")
		}
		if err := requireAccountAuth(st, env, msg.Owner); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return acceptDeal(st, msg)

	case "deal/reject":
		var msg codec.DealRejectTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad deal/reject value")
		}
		if err := requireAccountAuth(st, env, msg.Owner); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return rejectDeal(st, msg)

	case "deal/cancel":
		var msg codec.DealCancelTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad deal/cancel value")
		}
		if err := requireAccountAuth(st, env, msg.Viewer); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return cancelDeal(st, msg)

	case "withdraw/request":
		var msg codec.WithdrawRequestTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad withdraw/request value")
		}
		if err := requireAccountAuth(st, env, msg.Identity); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return requestWithdrawal(st, msg, now)

	case "withdraw/claim":
		var msg codec.WithdrawClaimTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad withdraw/claim value")
		}
		if err := requireAccountAuth(st, env, msg.Identity); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return claimWithdrawal(st, tr, msg, now)

	case "withdraw/set_delay":
		var msg codec.WithdrawSetDelayTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad withdraw/set_delay value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return setWithdrawalDelay(st, msg)

	case "withdraw/pause":
		var msg codec.WithdrawPauseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad withdraw/pause value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return pauseWithdrawals(st, msg)

	case "withdraw/unpause":
		var msg codec.WithdrawUnpauseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad withdraw/unpause value")
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		if err := checkReplayNonce(st, env); err != nil {
			return nil, err
		}
		return unpauseWithdrawals(st, msg)

	default:
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "unknown tx type: %s", env.Type)
	}
}

func errResult(err error) *abci.ExecTxResult {
	space, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{
		Code:      code,
		Codespace: space,
		Log:       log,
	}
}

// notableEvents get a node log line in addition to the tx result.
var notableEvents = map[string]bool{
	"EnginePaused":        true,
	"EngineUnpaused":      true,
	"GameDeactivated":     true,
	"GameFinalized":       true,
	"WithdrawalsPaused":   true,
	"WithdrawalsUnpaused": true,
}

func (a *GuessApp) logNotable(events []abci.Event, height int64) {
	for _, ev := range events {
		if !notableEvents[ev.Type] {
			continue
		}
		kv := make([]any, 0, 2+2*len(ev.Attributes))
		kv = append(kv, "height", height)
		for _, attr := range ev.Attributes {
			kv = append(kv, attr.Key, attr.Value)
		}
		a.logger.Info(ev.Type, kv...)
	}
}

func event(typ string, attrs map[string]string) abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return ev
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{event(typ, attrs)},
	}
}

func okEvents(events ...abci.Event) *abci.ExecTxResult {
	return &abci.ExecTxResult{
		Code:   0,
		Events: events,
	}
}
