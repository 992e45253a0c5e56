package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Layr-Labs/guess-game/internal/codec"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const (
	RoleOperator = "operator"
	RoleGuardian = "guardian"
)

func requireOperator(st *state.State, id string) error {
	if id == "" {
		return errorsmod.Wrap(ErrInvalidRequest, "missing caller")
	}
	if !st.Operators[id] {
		return errorsmod.Wrapf(ErrNotOperator, "%q", id)
	}
	return nil
}

func requireGuardian(st *state.State, id string) error {
	if id == "" {
		return errorsmod.Wrap(ErrInvalidRequest, "missing caller")
	}
	if !st.Guardians[id] {
		return errorsmod.Wrapf(ErrNotGuardian, "%q", id)
	}
	return nil
}

// requireNotPaused gates every non-administrative mutating op behind the
// guardian's engine-wide stop.
func requireNotPaused(st *state.State) error {
	if st.Paused {
		return ErrEnginePaused
	}
	return nil
}

func adminGrantRole(st *state.State, msg codec.AdminGrantRoleTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing identity")
	}
	switch msg.Role {
	case RoleOperator:
		st.Operators[msg.Identity] = true
	case RoleGuardian:
		st.Guardians[msg.Identity] = true
	default:
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "unknown role %q", msg.Role)
	}
	return okEvent("RoleGranted", map[string]string{
		"identity": msg.Identity,
		"role":     msg.Role,
	}), nil
}

func adminRevokeRole(st *state.State, msg codec.AdminRevokeRoleTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing identity")
	}
	switch msg.Role {
	case RoleOperator:
		if !st.Operators[msg.Identity] {
			return nil, errorsmod.Wrapf(ErrInvalidRequest, "%q does not hold role %q", msg.Identity, msg.Role)
		}
		delete(st.Operators, msg.Identity)
	case RoleGuardian:
		if !st.Guardians[msg.Identity] {
			return nil, errorsmod.Wrapf(ErrInvalidRequest, "%q does not hold role %q", msg.Identity, msg.Role)
		}
		delete(st.Guardians, msg.Identity)
	default:
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "unknown role %q", msg.Role)
	}
	return okEvent("RoleRevoked", map[string]string{
		"identity": msg.Identity,
		"role":     msg.Role,
	}), nil
}

func adminPause(st *state.State, msg codec.AdminPauseTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if st.Paused {
		return nil, errorsmod.Wrap(ErrEnginePaused, "already paused")
	}
	st.Paused = true
	return okEvent("EnginePaused", map[string]string{
		"guardian": msg.Caller,
	}), nil
}

func adminUnpause(st *state.State, msg codec.AdminUnpauseTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if !st.Paused {
		return nil, errorsmod.Wrap(ErrEngineNotPaused, "not paused")
	}
	st.Paused = false
	return okEvent("EngineUnpaused", map[string]string{
		"guardian": msg.Caller,
	}), nil
}

// adminAuthorizeUpgrade records a guardian's approval of a new implementation
// target. The engine never acts on the record; upgrade execution happens out
// of band.
func adminAuthorizeUpgrade(st *state.State, msg codec.AdminAuthorizeUpgradeTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireGuardian(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Target == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing target")
	}
	st.UpgradeTarget = msg.Target
	return okEvent("UpgradeAuthorized", map[string]string{
		"guardian": msg.Caller,
		"target":   msg.Target,
	}), nil
}
