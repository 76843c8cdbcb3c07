package trustpay

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ContractType distinguishes one-off payments from milestone schedules.
type ContractType uint8

const (
	ContractTypeOneTime ContractType = iota
	ContractTypeMilestone
)

// Valid reports whether the contract type is within the supported range.
func (t ContractType) Valid() bool {
	return t == ContractTypeOneTime || t == ContractTypeMilestone
}

// Role identifies which side of the agreement the creator acts as.
type Role uint8

const (
	RolePayer Role = iota
	RoleRecipient
)

// Valid reports whether the role value is within the supported range.
func (r Role) Valid() bool {
	return r == RolePayer || r == RoleRecipient
}

// ContractStatus represents the lifecycle states of an escrow contract.
// Completed and Cancelled are terminal; the contract record is destroyed when
// either is reached.
type ContractStatus uint8

const (
	ContractPending ContractStatus = iota
	ContractInProgress
	ContractCompleted
	ContractDisputed
	ContractCancelled
)

// Valid reports whether the status value is within the supported range.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractPending, ContractInProgress, ContractCompleted, ContractDisputed, ContractCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name used in event payloads and RPC
// responses.
func (s ContractStatus) String() string {
	switch s {
	case ContractPending:
		return "pending"
	case ContractInProgress:
		return "in_progress"
	case ContractCompleted:
		return "completed"
	case ContractDisputed:
		return "disputed"
	case ContractCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MilestoneStatus represents the lifecycle of a single milestone.
// ApprovedByPayer and Resolved are the terminal released states.
type MilestoneStatus uint8

const (
	MilestonePending MilestoneStatus = iota
	MilestoneCompletedBySP
	MilestoneApprovedByPayer
	MilestoneDisputed
	MilestoneResolved
)

// Valid reports whether the status value is within the supported range.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneCompletedBySP, MilestoneApprovedByPayer, MilestoneDisputed, MilestoneResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether the milestone has reached a released state and
// accepts no further transitions.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneApprovedByPayer || s == MilestoneResolved
}

// String returns the canonical lowercase name used in event payloads and RPC
// responses.
func (s MilestoneStatus) String() string {
	switch s {
	case MilestonePending:
		return "pending"
	case MilestoneCompletedBySP:
		return "completed"
	case MilestoneApprovedByPayer:
		return "approved"
	case MilestoneDisputed:
		return "disputed"
	case MilestoneResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Resolution encodes the outcome a resolver hands down for a disputed
// milestone.
type Resolution uint8

const (
	ResolutionFavorPayer Resolution = iota
	ResolutionFavorRecipient
	ResolutionSplit
)

// Valid reports whether the resolution value is within the supported range.
func (r Resolution) Valid() bool {
	return r <= ResolutionSplit
}

// String returns the canonical lowercase name used in event payloads.
func (r Resolution) String() string {
	switch r {
	case ResolutionFavorPayer:
		return "favor_payer"
	case ResolutionFavorRecipient:
		return "favor_recipient"
	case ResolutionSplit:
		return "split"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Field limits enforced at creation and dispute time.
const (
	MaxTitleLength                = 50
	MinTermsLength                = 10
	MaxTermsLength                = 1000
	MaxMilestones                 = 10
	MaxMilestoneDescriptionLength = 200
	MinDisputeReasonLength        = 10
	MaxDisputeReasonLength        = 500

	feeDenominator = 10_000

	// Deadlines further out than ten years are rejected as misconfigured.
	maxDeadlineDurationSeconds = int64(10 * 365 * 24 * 60 * 60)
)

// oneTimeMilestoneDescription labels the synthetic milestone backing one-time
// contracts.
const oneTimeMilestoneDescription = "One-time payment"

// Milestone is a unit of deliverable work owned exclusively by its parent
// contract. Timestamps are Unix seconds; zero means unset.
type Milestone struct {
	Description      string          `json:"description"`
	Amount           *big.Int        `json:"amount"`
	Status           MilestoneStatus `json:"status"`
	CompletedAt      int64           `json:"completedAt,omitempty"`
	ApprovedAt       int64           `json:"approvedAt,omitempty"`
	DisputedAt       int64           `json:"disputedAt,omitempty"`
	ResolvedAt       int64           `json:"resolvedAt,omitempty"`
	DisputeReason    string          `json:"disputeReason,omitempty"`
	DisputeID        string          `json:"disputeId,omitempty"`
	Resolution       Resolution      `json:"resolution,omitempty"`
	ResolutionReason string          `json:"resolutionReason,omitempty"`
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Validate ensures the milestone fields are sane prior to persistence.
func (m *Milestone) Validate() error {
	if m == nil {
		return ErrInvalidMilestoneIndex
	}
	if len(m.Description) > MaxMilestoneDescriptionLength {
		return ErrMilestoneDescriptionTooLong
	}
	if m.Amount == nil || m.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !m.Status.Valid() {
		return fmt.Errorf("trustpay: invalid milestone status %d", m.Status)
	}
	return nil
}

// Contract captures the immutable agreement metadata and runtime status of a
// single escrow between a payer and a recipient. The identifier is derived
// from the payer identity and a caller-chosen seed, so IDs are deterministic
// per payer.
type Contract struct {
	ID             [32]byte       `json:"id"`
	Type           ContractType   `json:"type"`
	Seed           uint64         `json:"seed"`
	Payer          [20]byte       `json:"payer"`
	Recipient      [20]byte       `json:"recipient"`
	Asset          string         `json:"asset"`
	Title          string         `json:"title"`
	Terms          string         `json:"terms"`
	TotalAmount    *big.Int       `json:"totalAmount"`
	Deadline       int64          `json:"deadline,omitempty"`
	AcceptedAt     int64          `json:"acceptedAt,omitempty"`
	CreatedAt      int64          `json:"createdAt"`
	Status         ContractStatus `json:"status"`
	FeeBps         uint32         `json:"feeBps"`
	FeeDestination [20]byte       `json:"feeDestination"`
	ReservedFee    *big.Int       `json:"reservedFee"`
	Milestones     []*Milestone   `json:"milestones"`
}

// ContractID derives the deterministic contract identifier from the payer
// identity and the caller-chosen seed.
func ContractID(payer [20]byte, seed uint64) [32]byte {
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	return ethcrypto.Keccak256Hash([]byte("trust-pay"), payer[:], seedBytes[:])
}

// Clone returns a deep copy of the contract so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(c.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	if c.ReservedFee != nil {
		clone.ReservedFee = new(big.Int).Set(c.ReservedFee)
	} else {
		clone.ReservedFee = big.NewInt(0)
	}
	if len(c.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(c.Milestones))
		for i, m := range c.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	return &clone
}

// MilestoneSum returns the sum of all milestone amounts. Holding
// MilestoneSum() == TotalAmount at every commit point is a core invariant.
func (c *Contract) MilestoneSum() *big.Int {
	sum := big.NewInt(0)
	if c == nil {
		return sum
	}
	for _, m := range c.Milestones {
		if m != nil && m.Amount != nil {
			sum.Add(sum, m.Amount)
		}
	}
	return sum
}

// AllMilestonesTerminal reports whether every milestone has reached a released
// state, which is exactly the closure condition for the contract.
func (c *Contract) AllMilestonesTerminal() bool {
	if c == nil || len(c.Milestones) == 0 {
		return false
	}
	for _, m := range c.Milestones {
		if m == nil || !m.Status.Terminal() {
			return false
		}
	}
	return true
}

// HasActiveDisputes reports whether any milestone is currently disputed.
func (c *Contract) HasActiveDisputes() bool {
	if c == nil {
		return false
	}
	for _, m := range c.Milestones {
		if m != nil && m.Status == MilestoneDisputed {
			return true
		}
	}
	return false
}

// ApprovedAmount returns the total amount already released through payer
// approval.
func (c *Contract) ApprovedAmount() *big.Int {
	sum := big.NewInt(0)
	if c == nil {
		return sum
	}
	for _, m := range c.Milestones {
		if m != nil && m.Status == MilestoneApprovedByPayer && m.Amount != nil {
			sum.Add(sum, m.Amount)
		}
	}
	return sum
}

// NormalizeAsset canonicalises an asset symbol. Symbols are uppercase
// alphanumeric, one to twelve characters.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if len(trimmed) == 0 || len(trimmed) > 12 {
		return "", ErrInvalidAsset
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidAsset
		}
	}
	return trimmed, nil
}

// SanitizeContract validates and normalises the supplied contract, returning a
// cloned instance with canonical asset casing and non-nil amounts. The
// function does not mutate the original value.
func SanitizeContract(c *Contract) (*Contract, error) {
	if c == nil {
		return nil, fmt.Errorf("trustpay: nil contract")
	}
	clone := c.Clone()
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if clone.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.FeeBps > feeDenominator {
		return nil, fmt.Errorf("trustpay: fee bps out of range: %d", clone.FeeBps)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("trustpay: invalid contract status: %d", clone.Status)
	}
	if len(clone.Milestones) == 0 || len(clone.Milestones) > MaxMilestones {
		return nil, ErrTooManyMilestones
	}
	for _, m := range clone.Milestones {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if clone.MilestoneSum().Cmp(clone.TotalAmount) != 0 {
		return nil, ErrMilestoneAmountMismatch
	}
	return clone, nil
}
