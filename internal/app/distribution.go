package app

import (
	"sort"

	"github.com/Layr-Labs/guess-game/internal/state"
)

type payout struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
}

// shareEdges groups a game's accepted deals by owner, each owner's edges in
// ascending deal-id order. Walk order over the deal graph is fixed by this
// ordering, so distribution is deterministic for a given state.
func shareEdges(st *state.State, gameID uint64) map[string][]*state.Deal {
	edges := map[string][]*state.Deal{}
	for _, d := range st.Deals {
		if d.GameID != gameID || d.Status != state.DealAccepted {
			continue
		}
		edges[d.Owner] = append(edges[d.Owner], d)
	}
	for _, ds := range edges {
		sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
	}
	return edges
}

type walkFrame struct {
	identity  string
	remaining uint64
	incoming  uint64
	edges     []*state.Deal
	next      int
	usedBps   uint32
}

// distributeWinnings splits amount across the game's accepted deal graph
// starting from winner. Each edge diverts floor(incoming*bps/10000) of the
// node's incoming amount to the deal's viewer; cumulative outgoing bps per
// node is clamped at 10000, with the edge that crosses the ceiling paying a
// partial cut and later edges paying nothing. A node already on the walk
// stack absorbs its cut directly instead of being re-expanded, so cyclic
// deal graphs terminate. Whatever a node does not forward stays with it.
//
// The returned payouts sum to amount exactly and are sorted by identity.
func distributeWinnings(st *state.State, gameID uint64, winner string, amount uint64) []payout {
	credited := map[string]uint64{}
	credit := func(identity string, amt uint64) {
		if amt != 0 {
			credited[identity] += amt
		}
	}
	if amount == 0 {
		return nil
	}

	edges := shareEdges(st, gameID)
	visiting := map[string]bool{winner: true}
	stack := []*walkFrame{{
		identity:  winner,
		remaining: amount,
		incoming:  amount,
		edges:     edges[winner],
	}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.next >= len(f.edges) {
			credit(f.identity, f.remaining)
			delete(visiting, f.identity)
			stack = stack[:len(stack)-1]
			continue
		}
		e := f.edges[f.next]
		f.next++

		bps := e.ShareBps
		if f.usedBps >= maxShareBps {
			continue
		}
		if room := maxShareBps - f.usedBps; bps > room {
			bps = room
		}
		cut := shareCut(f.incoming, bps)
		f.usedBps += bps
		if cut == 0 {
			continue
		}
		f.remaining -= cut

		if visiting[e.Viewer] {
			credit(e.Viewer, cut)
			continue
		}
		visiting[e.Viewer] = true
		stack = append(stack, &walkFrame{
			identity:  e.Viewer,
			remaining: cut,
			incoming:  cut,
			edges:     edges[e.Viewer],
		})
	}

	out := make([]payout, 0, len(credited))
	for identity, amt := range credited {
		out = append(out, payout{Identity: identity, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
