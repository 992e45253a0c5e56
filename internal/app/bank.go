package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

// bankMint is the localnet faucet. It is unsigned on purpose; real deployments
// would not carry this tx type.
func bankMint(st *state.State, msg codec.BankMintTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if msg.To == "" || msg.Amount == 0 {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing to/amount")
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, errorsmod.Wrap(ErrOverflow, err.Error())
	}
	return okEvent("BankMinted", map[string]string{
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func bankSend(st *state.State, msg codec.BankSendTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if msg.From == "" || msg.To == "" || msg.Amount == 0 {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing from/to/amount")
	}
	if err := st.Debit(msg.From, msg.Amount); err != nil {
		return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		// Undo the debit so a rejected send cannot burn funds.
		st.Credit(msg.From, msg.Amount)
		return nil, errorsmod.Wrap(ErrOverflow, err.Error())
	}
	return okEvent("BankSent", map[string]string{
		"from":   msg.From,
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func authRegisterAccount(st *state.State, msg codec.AuthRegisterAccountTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	// Idempotent for localnet/scripts; the key must not change once set.
	if existing := st.AccountKeys[msg.Account]; len(existing) != 0 {
		if string(existing) != string(msg.PubKey) {
			return nil, errorsmod.Wrapf(ErrUnauthorized, "account pubKey mismatch for %q", msg.Account)
		}
		return okEvent("AccountRegistered", map[string]string{
			"account":  msg.Account,
			"existing": "true",
		}), nil
	}
	st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
	return okEvent("AccountRegistered", map[string]string{
		"account": msg.Account,
	}), nil
}
