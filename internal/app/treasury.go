package app

import (
	"github.com/Layr-Labs/guess-game/internal/state"
)

// escrowAccount holds every collected fee until a withdrawal claim pays it
// back out.
const escrowAccount = "guess/escrow"

// Treasury moves funds between participant bank accounts and the engine's
// escrow. Implementations must either fully apply a transfer or leave both
// sides untouched. The ledger is passed explicitly so a transfer always acts
// on the same staged copy the calling handler mutates.
type Treasury interface {
	// TransferIn collects amount from identity into escrow.
	TransferIn(st *state.State, identity string, amount uint64) error
	// TransferOut pays amount from escrow to identity.
	TransferOut(st *state.State, identity string, amount uint64) error
}

// bankTreasury settles against the chain's own bank accounts.
type bankTreasury struct{}

func (bankTreasury) TransferIn(st *state.State, identity string, amount uint64) error {
	if err := st.Debit(identity, amount); err != nil {
		return err
	}
	if err := st.Credit(escrowAccount, amount); err != nil {
		// Undo the debit; crediting back what was just debited cannot fail.
		st.Credit(identity, amount)
		return err
	}
	return nil
}

func (bankTreasury) TransferOut(st *state.State, identity string, amount uint64) error {
	if err := st.Debit(escrowAccount, amount); err != nil {
		return err
	}
	if err := st.Credit(identity, amount); err != nil {
		st.Credit(escrowAccount, amount)
		return err
	}
	return nil
}
