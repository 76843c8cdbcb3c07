package trustpay

import "math/big"

// GlobalState is the platform-wide ledger record: resolver authority, fee
// configuration snapshotted into each contract at creation, and monotonically
// increasing aggregate counters. It is created once before the first contract
// and mutated by every terminal operation; it is never deleted.
//
// Aggregate volume is tracked in the token's smallest unit using a single
// TokenDecimals precision across all assets. When contracts escrow assets of
// differing precision the aggregates mix units; TokenDecimals only records the
// precision the totals are rendered with.
type GlobalState struct {
	Authority             [20]byte `json:"authority"`
	TotalContractsCreated uint64   `json:"totalContractsCreated"`
	TotalContractsClosed  uint64   `json:"totalContractsClosed"`
	TotalConfirmations    uint64   `json:"totalConfirmations"`
	TotalDisputes         uint64   `json:"totalDisputes"`
	FeeBps                uint32   `json:"feeBps"`
	FeeDestination        [20]byte `json:"feeDestination"`
	TotalFeesCollected    *big.Int `json:"totalFeesCollected"`
	TotalVolume           *big.Int `json:"totalVolume"`
	HighWatermarkVolume   *big.Int `json:"highWatermarkVolume"`
	LastVolumeUpdate      int64    `json:"lastVolumeUpdate"`
	TokenDecimals         uint8    `json:"tokenDecimals"`
}

// NewGlobalState returns an initialised platform record.
func NewGlobalState(authority [20]byte, feeBps uint32, feeDestination [20]byte, tokenDecimals uint8, now int64) *GlobalState {
	return &GlobalState{
		Authority:           authority,
		FeeBps:              feeBps,
		FeeDestination:      feeDestination,
		TokenDecimals:       tokenDecimals,
		TotalFeesCollected:  big.NewInt(0),
		TotalVolume:         big.NewInt(0),
		HighWatermarkVolume: big.NewInt(0),
		LastVolumeUpdate:    now,
	}
}

// Clone returns a deep copy of the global state.
func (g *GlobalState) Clone() *GlobalState {
	if g == nil {
		return nil
	}
	clone := *g
	clone.TotalFeesCollected = cloneBigInt(g.TotalFeesCollected)
	clone.TotalVolume = cloneBigInt(g.TotalVolume)
	clone.HighWatermarkVolume = cloneBigInt(g.HighWatermarkVolume)
	return &clone
}

func (g *GlobalState) ensureAmounts() {
	if g.TotalFeesCollected == nil {
		g.TotalFeesCollected = big.NewInt(0)
	}
	if g.TotalVolume == nil {
		g.TotalVolume = big.NewInt(0)
	}
	if g.HighWatermarkVolume == nil {
		g.HighWatermarkVolume = big.NewInt(0)
	}
}

// recordPaymentApproval accounts for a released milestone: volume, fee intake
// and the confirmation counter. The high watermark tracks the running total.
func (g *GlobalState) recordPaymentApproval(amount, fee *big.Int, now int64) {
	g.ensureAmounts()
	g.TotalConfirmations++
	if amount != nil {
		g.TotalVolume.Add(g.TotalVolume, amount)
	}
	if fee != nil {
		g.TotalFeesCollected.Add(g.TotalFeesCollected, fee)
	}
	if g.TotalVolume.Cmp(g.HighWatermarkVolume) > 0 {
		g.HighWatermarkVolume.Set(g.TotalVolume)
	}
	g.LastVolumeUpdate = now
}

// recordDispute bumps the platform dispute counter.
func (g *GlobalState) recordDispute() {
	g.TotalDisputes++
}

// recordContractClosed accounts for a contract that ran to completion.
func (g *GlobalState) recordContractClosed(now int64) {
	g.TotalContractsClosed++
	g.LastVolumeUpdate = now
}
