package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v1 transaction container.
//
// CometBFT transactions are opaque bytes. For v1 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth:
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (the caller identity for account-signed txs).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth ----

// Account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Admin ----

type AdminGrantRoleTx struct {
	Caller   string `json:"caller"`
	Identity string `json:"identity"`
	Role     string `json:"role"` // operator|guardian
}

type AdminRevokeRoleTx struct {
	Caller   string `json:"caller"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

type AdminPauseTx struct {
	Caller string `json:"caller"`
}

type AdminUnpauseTx struct {
	Caller string `json:"caller"`
}

type AdminAuthorizeUpgradeTx struct {
	Caller string `json:"caller"`
	Target string `json:"target"` // opaque implementation reference
}

// ---- Games ----

type GameCreateTx struct {
	Creator string `json:"creator"`
	Meta    []byte `json:"meta"` // base64, non-empty
	FeeBase uint64 `json:"feeBase"`
}

type GameSetFeeBaseTx struct {
	Caller  string `json:"caller"`
	GameID  uint64 `json:"gameId"`
	FeeBase uint64 `json:"feeBase"`
}

type GameSetFeeDeltaTx struct {
	Caller   string `json:"caller"`
	GameID   uint64 `json:"gameId"`
	FeeDelta uint64 `json:"feeDelta"`
}

type GameSubmitGuessTx struct {
	Player  string `json:"player"`
	GameID  uint64 `json:"gameId"`
	Payload []byte `json:"payload"` // base64, non-empty
	Meta    []byte `json:"meta"`    // base64, non-empty
}

type GameFinalizeTx struct {
	Caller     string   `json:"caller"`
	GameID     uint64   `json:"gameId"`
	Recipients []string `json:"recipients"`
	Amounts    []uint64 `json:"amounts"`
}

// GameFinalizeWinnerTx settles by propagating the whole pot from the winner
// through the accepted deal graph instead of taking an explicit payout vector.
type GameFinalizeWinnerTx struct {
	Caller string `json:"caller"`
	GameID uint64 `json:"gameId"`
	Winner string `json:"winner"`
}

// ---- Deals ----

type DealProposeTx struct {
	Viewer   string `json:"viewer"`
	GameID   uint64 `json:"gameId"`
	GuessID  uint64 `json:"guessId"`
	Owner    string `json:"owner"` // must match the guess record's owner
	ShareBps uint32 `json:"shareBps"`
}

type DealAcceptTx struct {
	Owner  string `json:"owner"`
	DealID uint64 `json:"dealId"`
}

type DealRejectTx struct {
	Owner  string `json:"owner"`
	DealID uint64 `json:"dealId"`
}

type DealCancelTx struct {
	Viewer string `json:"viewer"`
	DealID uint64 `json:"dealId"`
}

// ---- Withdrawals ----

type WithdrawRequestTx struct {
	Identity string `json:"identity"`
}

type WithdrawClaimTx struct {
	Identity string `json:"identity"`
}

type WithdrawSetDelayTx struct {
	Caller    string `json:"caller"`
	DelaySecs uint64 `json:"delaySecs"`
}

type WithdrawPauseTx struct {
	Caller string `json:"caller"`
}

type WithdrawUnpauseTx struct {
	Caller string `json:"caller"`
}
