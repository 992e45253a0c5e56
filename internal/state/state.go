package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Params holds engine configuration sealed at genesis. MaxPot is immutable for
// the lifetime of the state; WithdrawalDelaySecs may only change through the
// guardian-gated withdraw/set_delay tx.
type Params struct {
	// MaxPot is the pot ceiling that deactivates a game and trips the
	// withdrawal latch. 0 disables the ceiling.
	MaxPot              uint64 `json:"maxPot,omitempty"`
	WithdrawalDelaySecs uint64 `json:"withdrawalDelaySecs,omitempty"`
}

// Config seeds a fresh state at first boot. It is ignored when a persisted
// state already exists under the home directory.
type Config struct {
	MaxPot              uint64
	WithdrawalDelaySecs uint64
	Operators           []string
	Guardians           []string
}

type State struct {
	Height int64 `json:"height"`

	Params Params `json:"params"`

	// Paused is the guardian's engine-wide stop. WithdrawalsPaused is the cap
	// latch: set automatically when a pot crosses Params.MaxPot (or by a
	// guardian), cleared only by a guardian.
	Paused            bool `json:"paused,omitempty"`
	WithdrawalsPaused bool `json:"withdrawalsPaused,omitempty"`

	// UpgradeTarget records the last guardian-authorized implementation
	// target. The engine only records the approval; it never acts on it.
	UpgradeTarget string `json:"upgradeTarget,omitempty"`

	Operators map[string]bool `json:"operators,omitempty"`
	Guardians map[string]bool `json:"guardians,omitempty"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection

	// Balances is the internal winnings ledger, distinct from Accounts. It is
	// credited by settlement and drained through the withdrawal queue.
	Balances           map[string]uint64             `json:"balances,omitempty"`
	PendingWithdrawals map[string]*PendingWithdrawal `json:"pendingWithdrawals,omitempty"`

	NextGameID uint64           `json:"nextGameId"`
	Games      map[uint64]*Game `json:"games"`

	NextDealID     uint64              `json:"nextDealId"`
	Deals          map[uint64]*Deal    `json:"deals"`
	PendingByOwner map[string][]uint64 `json:"pendingByOwner,omitempty"`

	// Shares tracks accepted/reserved share basis points per viewer per game.
	Shares map[string]map[uint64]*ShareState `json:"shares,omitempty"`
}

func NewState(cfg Config) *State {
	st := &State{
		Height: 0,
		Params: Params{
			MaxPot:              cfg.MaxPot,
			WithdrawalDelaySecs: cfg.WithdrawalDelaySecs,
		},
		Operators:          map[string]bool{},
		Guardians:          map[string]bool{},
		Accounts:           map[string]uint64{},
		AccountKeys:        map[string][]byte{},
		NonceMax:           map[string]uint64{},
		Balances:           map[string]uint64{},
		PendingWithdrawals: map[string]*PendingWithdrawal{},
		NextGameID:         1,
		Games:              map[uint64]*Game{},
		NextDealID:         1,
		Deals:              map[uint64]*Deal{},
		PendingByOwner:     map[string][]uint64{},
		Shares:             map[string]map[uint64]*ShareState{},
	}
	for _, id := range cfg.Operators {
		if id != "" {
			st.Operators[id] = true
		}
	}
	for _, id := range cfg.Guardians {
		if id != "" {
			st.Guardians[id] = true
		}
	}
	return st
}

func Load(home string, cfg Config) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(cfg), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// normalize repairs nil maps and zero counters after a JSON round trip.
func (s *State) normalize() {
	if s.Operators == nil {
		s.Operators = map[string]bool{}
	}
	if s.Guardians == nil {
		s.Guardians = map[string]bool{}
	}
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Balances == nil {
		s.Balances = map[string]uint64{}
	}
	if s.PendingWithdrawals == nil {
		s.PendingWithdrawals = map[string]*PendingWithdrawal{}
	}
	if s.Games == nil {
		s.Games = map[uint64]*Game{}
	}
	if s.Deals == nil {
		s.Deals = map[uint64]*Deal{}
	}
	if s.PendingByOwner == nil {
		s.PendingByOwner = map[string][]uint64{}
	}
	if s.Shares == nil {
		s.Shares = map[string]map[uint64]*ShareState{}
	}
	if s.NextGameID == 0 {
		s.NextGameID = 1
	}
	if s.NextDealID == 0 {
		s.NextDealID = 1
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type withdrawalKV struct {
		Identity string             `json:"identity"`
		Pending  *PendingWithdrawal `json:"pending"`
	}
	type gameKV struct {
		ID   uint64 `json:"id"`
		Game *Game  `json:"game"`
	}
	type dealKV struct {
		ID   uint64 `json:"id"`
		Deal *Deal  `json:"deal"`
	}
	type pendingKV struct {
		Owner string   `json:"owner"`
		Deals []uint64 `json:"deals"`
	}
	type shareKV struct {
		Viewer string      `json:"viewer"`
		GameID uint64      `json:"gameId"`
		Share  *ShareState `json:"share"`
	}

	sortedMembers := func(set map[string]bool) []string {
		out := make([]string, 0, len(set))
		for id, ok := range set {
			if ok {
				out = append(out, id)
			}
		}
		sort.Strings(out)
		return out
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	balances := make([]accountKV, 0, len(s.Balances))
	for k, v := range s.Balances {
		balances = append(balances, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Addr < balances[j].Addr })

	withdrawals := make([]withdrawalKV, 0, len(s.PendingWithdrawals))
	for k, v := range s.PendingWithdrawals {
		withdrawals = append(withdrawals, withdrawalKV{Identity: k, Pending: v})
	}
	sort.Slice(withdrawals, func(i, j int) bool { return withdrawals[i].Identity < withdrawals[j].Identity })

	games := make([]gameKV, 0, len(s.Games))
	for id, g := range s.Games {
		games = append(games, gameKV{ID: id, Game: g})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	deals := make([]dealKV, 0, len(s.Deals))
	for id, d := range s.Deals {
		deals = append(deals, dealKV{ID: id, Deal: d})
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].ID < deals[j].ID })

	pending := make([]pendingKV, 0, len(s.PendingByOwner))
	for owner, ids := range s.PendingByOwner {
		pending = append(pending, pendingKV{Owner: owner, Deals: ids})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Owner < pending[j].Owner })

	shares := make([]shareKV, 0)
	for viewer, perGame := range s.Shares {
		for gameID, ss := range perGame {
			shares = append(shares, shareKV{Viewer: viewer, GameID: gameID, Share: ss})
		}
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Viewer != shares[j].Viewer {
			return shares[i].Viewer < shares[j].Viewer
		}
		return shares[i].GameID < shares[j].GameID
	})

	normalized := struct {
		Height            int64          `json:"height"`
		Params            Params         `json:"params"`
		Paused            bool           `json:"paused"`
		WithdrawalsPaused bool           `json:"withdrawalsPaused"`
		UpgradeTarget     string         `json:"upgradeTarget,omitempty"`
		Operators         []string       `json:"operators"`
		Guardians         []string       `json:"guardians"`
		Accounts          []accountKV    `json:"accounts"`
		AccountKeys       []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax          []nonceKV      `json:"nonceMax,omitempty"`
		Balances          []accountKV    `json:"balances"`
		Withdrawals       []withdrawalKV `json:"withdrawals"`
		NextGameID        uint64         `json:"nextGameId"`
		Games             []gameKV       `json:"games"`
		NextDealID        uint64         `json:"nextDealId"`
		Deals             []dealKV       `json:"deals"`
		PendingByOwner    []pendingKV    `json:"pendingByOwner"`
		Shares            []shareKV      `json:"shares"`
	}{
		Height:            s.Height,
		Params:            s.Params,
		Paused:            s.Paused,
		WithdrawalsPaused: s.WithdrawalsPaused,
		UpgradeTarget:     s.UpgradeTarget,
		Operators:         sortedMembers(s.Operators),
		Guardians:         sortedMembers(s.Guardians),
		Accounts:          accounts,
		AccountKeys:       accountKeys,
		NonceMax:          nonces,
		Balances:          balances,
		Withdrawals:       withdrawals,
		NextGameID:        s.NextGameID,
		Games:             games,
		NextDealID:        s.NextDealID,
		Deals:             deals,
		PendingByOwner:    pending,
		Shares:            shares,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Winnings ledger ----

func (s *State) Winnings(id string) uint64 {
	return s.Balances[id]
}

func (s *State) CreditWinnings(id string, amount uint64) error {
	bal := s.Balances[id]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("winnings overflow: have=%d add=%d", bal, amount)
	}
	s.Balances[id] = bal + amount
	return nil
}

// ---- Games ----

type Game struct {
	ID      uint64 `json:"id"`
	Creator string `json:"creator"`
	Meta    []byte `json:"meta"` // opaque, non-empty

	// Linear fee schedule: the k-th guess costs FeeBase + FeeDelta*(k-1).
	FeeBase  uint64 `json:"feeBase"`
	FeeDelta uint64 `json:"feeDelta,omitempty"`

	Pot    uint64 `json:"pot"`
	Active bool   `json:"active"`

	// NextGuessSeq is the 1-based sequence of the next guess to be charged.
	NextGuessSeq uint64         `json:"nextGuessSeq"`
	Guesses      []*GuessRecord `json:"guesses,omitempty"`
}

// Guess looks up a guess by its 1-based id.
func (g *Game) Guess(id uint64) *GuessRecord {
	if g == nil || id == 0 || id > uint64(len(g.Guesses)) {
		return nil
	}
	return g.Guesses[id-1]
}

type GuessRecord struct {
	ID      uint64 `json:"id"`
	Owner   string `json:"owner"`
	Payload []byte `json:"payload"`
	Meta    []byte `json:"meta"`

	// SequenceAtCharge is the schedule position the fee was priced at.
	SequenceAtCharge uint64 `json:"sequenceAtCharge"`
	Fee              uint64 `json:"fee"`
}

// ---- Deals ----

type DealStatus string

const (
	DealPending   DealStatus = "pending"
	DealAccepted  DealStatus = "accepted"
	DealRejected  DealStatus = "rejected"
	DealCancelled DealStatus = "cancelled"
)

type Deal struct {
	ID       uint64     `json:"id"`
	GameID   uint64     `json:"gameId"`
	GuessID  uint64     `json:"guessId"`
	Owner    string     `json:"owner"`  // recipient of the proposal (guess owner)
	Viewer   string     `json:"viewer"` // proposer, receives ShareBps of the owner's winnings
	ShareBps uint32     `json:"shareBps"`
	Status   DealStatus `json:"status"`

	CreatedAt int64 `json:"createdAt"` // block time (unix seconds) at proposal

	// OwnerPendingPos is this deal's index in PendingByOwner[Owner] while
	// Status == pending, kept for O(1) swap-with-last removal.
	OwnerPendingPos int `json:"ownerPendingPos"`
}

// Terminal reports whether the deal has left the pending state for good.
func (d *Deal) Terminal() bool {
	return d != nil && d.Status != DealPending
}

// ShareState is the per-(viewer, game) share book. AcceptedBps+ReservedBps
// never exceeds 10000.
type ShareState struct {
	AcceptedBps uint32 `json:"acceptedBps"`
	ReservedBps uint32 `json:"reservedBps"`

	// AcceptedDeals lists accepted deal ids in acceptance order.
	AcceptedDeals []uint64 `json:"acceptedDeals,omitempty"`
}

// ---- Withdrawals ----

type PendingWithdrawal struct {
	Amount      uint64 `json:"amount"`
	AvailableAt int64  `json:"availableAt"` // unix seconds
}
