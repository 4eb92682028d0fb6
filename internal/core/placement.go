package core

import (
	"hash/fnv"

	"github.com/drivepool/drivepool/internal/model"
)

// Strategy selects how the placement policy picks an owning account for a
// newly uploaded file. One strategy is active at a time for the whole
// registry.
type Strategy string

const (
	// StrategySpace places on the account with the most raw free space.
	StrategySpace Strategy = "space-based"

	// StrategyRoundRobin places on the first active account in ascending
	// priority order. The observed behavior is a stable priority sort,
	// not cyclic rotation; see DESIGN.md for the recorded decision.
	StrategyRoundRobin Strategy = "round-robin"

	// StrategyType hashes the file's derived type so same-type files tend
	// to co-locate. Statistical, not correctness-critical.
	StrategyType Strategy = "type-based"

	// StrategySmart is the default: free-space fraction minus a crude
	// file-count load penalty, so one account is not hammered just for
	// having the most headroom.
	StrategySmart Strategy = "smart-balance"
)

// ParseStrategy maps a config string onto a Strategy, defaulting to
// smart-balance.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategySpace, StrategyRoundRobin, StrategyType, StrategySmart:
		return Strategy(s)
	}
	return StrategySmart
}

// PlacementPolicy chooses the owning account for new files.
type PlacementPolicy struct {
	strategy Strategy
	registry *AccountRegistry
}

// NewPlacementPolicy creates a policy over the registry.
func NewPlacementPolicy(strategy Strategy, registry *AccountRegistry) *PlacementPolicy {
	return &PlacementPolicy{strategy: strategy, registry: registry}
}

// Strategy returns the active strategy.
func (p *PlacementPolicy) Strategy() Strategy {
	return p.strategy
}

// SetStrategy switches the active strategy.
func (p *PlacementPolicy) SetStrategy(s Strategy) {
	p.strategy = s
}

// Choose selects an owning account id for file among candidates, or ""
// when no active candidate can absorb it. Candidates that fail the
// registry capacity check (including the safety buffer) are vetoed before
// any scoring runs, so a chosen account is always placeable-into.
func (p *PlacementPolicy) Choose(file *model.File, candidates []*model.Account) string {
	var eligible []*model.Account
	for _, acc := range candidates {
		if !acc.IsActive {
			continue
		}
		if !p.registry.HasCapacity(acc.ID, file.Size) {
			continue
		}
		eligible = append(eligible, acc)
	}
	if len(eligible) == 0 {
		return ""
	}

	switch p.strategy {
	case StrategySpace:
		return mostFree(eligible).ID
	case StrategyRoundRobin:
		// Candidates arrive priority-ordered from the registry; the first
		// eligible one wins.
		return eligible[0].ID
	case StrategyType:
		return typeHashed(file, eligible).ID
	default:
		return smartBalanced(eligible).ID
	}
}

func mostFree(accounts []*model.Account) *model.Account {
	best := accounts[0]
	for _, acc := range accounts[1:] {
		if acc.FreeSpace() > best.FreeSpace() {
			best = acc
		}
	}
	return best
}

// typeHashed rendezvous-hashes each candidate's id with the file's type
// and takes the highest weight. Same-type files land on the same account,
// and the winner only changes when the winner itself joins or leaves the
// eligible set.
func typeHashed(file *model.File, accounts []*model.Account) *model.Account {
	best := accounts[0]
	bestWeight := hash32(best.ID + "/" + string(file.Type))
	for _, acc := range accounts[1:] {
		if w := hash32(acc.ID + "/" + string(file.Type)); w > bestWeight {
			best, bestWeight = acc, w
		}
	}
	return best
}

func smartBalanced(accounts []*model.Account) *model.Account {
	best := accounts[0]
	bestScore := smartScore(best)
	for _, acc := range accounts[1:] {
		if s := smartScore(acc); s > bestScore {
			best, bestScore = acc, s
		}
	}
	return best
}

// smartScore trades free-space fraction against a file-count load penalty.
func smartScore(acc *model.Account) float64 {
	free := 0.0
	if acc.TotalSpace > 0 {
		free = float64(acc.FreeSpace()) / float64(acc.TotalSpace)
	}
	return free - float64(acc.FileCount())/1000.0
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
