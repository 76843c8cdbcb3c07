package core

import (
	"strings"
	"sync"

	"trustpay/core/events"
	nhstate "trustpay/core/state"
	"trustpay/core/types"
	"trustpay/native/trustpay"
	"trustpay/storage"
)

// eventLogLimit bounds the in-memory event buffer exposed over RPC.
const eventLogLimit = 4096

// StoredEvent pairs an emitted event with its sequence number in the node's
// event log.
type StoredEvent struct {
	Sequence uint64
	Event    *types.Event
}

// Node wires the storage backend, state manager and escrow engine together and
// serialises all engine operations. The node-level lock is the mutual
// exclusion unit required by the engine's atomicity contract: no two
// operations interleave, and each either fully applies or fully fails.
type Node struct {
	mu       sync.Mutex
	db       storage.Database
	state    *nhstate.Manager
	engine   *trustpay.Engine
	eventSeq uint64
	eventLog []StoredEvent
}

// NewNode constructs a node over the supplied database.
func NewNode(db storage.Database) *Node {
	node := &Node{
		db:    db,
		state: nhstate.NewManager(db),
	}
	engine := trustpay.NewEngine()
	engine.SetState(node.state)
	engine.SetEmitter(node)
	node.engine = engine
	return node
}

// Engine exposes the underlying escrow engine so callers can override the
// clock and dispute-ID generator in tests.
func (n *Node) Engine() *trustpay.Engine { return n.engine }

// State exposes the state manager for genesis funding and tests.
func (n *Node) State() *nhstate.Manager { return n.state }

// Emit implements events.Emitter and appends engine events to the node's
// bounded event log. The engine only emits while an operation holds the node
// lock, so no additional synchronisation is needed here.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	n.eventSeq++
	n.eventLog = append(n.eventLog, StoredEvent{Sequence: n.eventSeq, Event: payload})
	if len(n.eventLog) > eventLogLimit {
		n.eventLog = n.eventLog[len(n.eventLog)-eventLogLimit:]
	}
}

// InitializeGlobalState bootstraps the platform record if missing.
func (n *Node) InitializeGlobalState(authority [20]byte, feeBps uint32, feeDestination [20]byte, tokenDecimals uint8) (*trustpay.GlobalState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.InitializeGlobalState(authority, feeBps, feeDestination, tokenDecimals)
}

// CreateContract submits a creation request on behalf of the caller.
func (n *Node) CreateContract(caller [20]byte, params trustpay.CreateParams) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Create(caller, params)
}

// AcceptContract funds a pending contract as the payer.
func (n *Node) AcceptContract(id [32]byte, caller [20]byte, deadlineDuration int64) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Accept(id, caller, deadlineDuration)
}

// DeclineContract rejects a pending contract as the payer.
func (n *Node) DeclineContract(id [32]byte, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Decline(id, caller)
}

// CancelContract withdraws a pending contract as its creator.
func (n *Node) CancelContract(id [32]byte, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Cancel(id, caller)
}

// MarkMilestoneComplete records milestone delivery by the recipient.
func (n *Node) MarkMilestoneComplete(id [32]byte, caller [20]byte, index int) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.MarkMilestoneComplete(id, caller, index)
}

// ApproveMilestone releases a completed milestone as the payer.
func (n *Node) ApproveMilestone(id [32]byte, caller [20]byte, index int) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ApproveMilestone(id, caller, index)
}

// DisputeMilestone freezes a completed milestone pending adjudication.
func (n *Node) DisputeMilestone(id [32]byte, caller [20]byte, index int, reason string) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Dispute(id, caller, index, reason)
}

// ResolveDispute settles a disputed milestone as the resolver authority.
func (n *Node) ResolveDispute(id [32]byte, caller [20]byte, index int, resolution trustpay.Resolution, reason string) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Resolve(id, caller, index, resolution, reason)
}

// GetContract returns a copy of a stored contract.
func (n *Node) GetContract(id [32]byte) (*trustpay.Contract, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Get(id)
}

// GlobalState returns a copy of the platform record.
func (n *Node) GlobalState() (*trustpay.GlobalState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GlobalStateSnapshot()
}

// GetAccount reads the ledger account for an address.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr[:])
}

// Events returns up to limit stored events, newest last, optionally filtered
// by type prefix. limit <= 0 returns everything buffered.
func (n *Node) Events(prefix string, limit int) []StoredEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	matched := make([]StoredEvent, 0, len(n.eventLog))
	for _, stored := range n.eventLog {
		if prefix != "" && !strings.HasPrefix(stored.Event.Type, prefix) {
			continue
		}
		matched = append(matched, stored)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
