package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"

	errorsmod "cosmossdk.io/errors"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const txAuthDomainV1 = "guess/tx/v1"

func txAuthSignBytesV1(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV1)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV1)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.nonce")
	}
	if env.Signer == "" {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return errorsmod.Wrapf(ErrUnauthorized, "invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

func requireRegisterAccountAuth(env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if msg.Account == "" {
		return errorsmod.Wrap(ErrInvalidRequest, "missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return errorsmod.Wrapf(ErrInvalidRequest, "pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return errorsmod.Wrapf(ErrUnauthorized, "tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := txAuthSignBytesV1(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return errorsmod.Wrap(ErrUnauthorized, "invalid signature")
	}
	return nil
}

func requireAccountAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == "" {
		return errorsmod.Wrap(ErrInvalidRequest, "missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return errorsmod.Wrapf(ErrUnauthorized, "tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return errorsmod.Wrapf(ErrUnauthorized, "account %q missing pubKey (auth/register_account required)", account)
	}
	msg := txAuthSignBytesV1(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return errorsmod.Wrap(ErrUnauthorized, "invalid signature")
	}
	return nil
}

// checkReplayNonce enforces strictly increasing numeric nonces per signer.
// The bump lands on the staged state, so a tx that fails later does not burn
// its nonce.
func checkReplayNonce(st *state.State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return errorsmod.Wrapf(ErrUnauthorized, "invalid tx.nonce: %q", env.Nonce)
	}
	if last, ok := st.NonceMax[env.Signer]; ok && n <= last {
		return errorsmod.Wrapf(ErrUnauthorized, "replayed tx.nonce: %d <= %d", n, last)
	}
	st.NonceMax[env.Signer] = n
	return nil
}
