package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trustpay/core/types"
	"trustpay/native/trustpay"
	"trustpay/storage"
)

func nodeAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func newTestNode(t *testing.T, db storage.Database) *Node {
	t.Helper()
	node := NewNode(db)
	node.Engine().SetNowFunc(func() int64 { return 1_000_000 })
	_, err := node.InitializeGlobalState(nodeAddr(0xAA), 5, nodeAddr(0xFE), 6)
	require.NoError(t, err)
	return node
}

func fundNodeAccount(t *testing.T, node *Node, addr [20]byte, amount int64) {
	t.Helper()
	account, err := node.State().GetAccount(addr[:])
	require.NoError(t, err)
	account.SetBalance("USDC", big.NewInt(amount))
	require.NoError(t, node.State().PutAccount(addr[:], account))
}

func TestNodeFullLifecycle(t *testing.T) {
	db := storage.NewMemDB()
	node := newTestNode(t, db)

	payer := nodeAddr(0x01)
	recipient := nodeAddr(0x02)
	fundNodeAccount(t, node, payer, 10_000_000)

	contract, err := node.CreateContract(payer, trustpay.CreateParams{
		Seed:         1,
		CreatorRole:  trustpay.RolePayer,
		Counterparty: recipient,
		Type:         trustpay.ContractTypeOneTime,
		Asset:        "USDC",
		Title:        "Logo design",
		Terms:        "One-off payment released on approval.",
		TotalAmount:  big.NewInt(1_000_000),
		// One-time contracts synthesize their single milestone.
		DeadlineDuration: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, trustpay.ContractInProgress, contract.Status)

	fetched, err := node.GetContract(contract.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Milestones, 1)

	_, err = node.MarkMilestoneComplete(contract.ID, recipient, 0)
	require.NoError(t, err)
	_, err = node.ApproveMilestone(contract.ID, payer, 0)
	require.NoError(t, err)

	// Single milestone released: the contract closed and the record is gone.
	_, err = node.GetContract(contract.ID)
	require.ErrorIs(t, err, trustpay.ErrContractNotFound)

	recipientAcc, err := node.GetAccount(recipient)
	require.NoError(t, err)
	require.Equal(t, "999500", recipientAcc.Balance("USDC").String())
	feeAcc, err := node.GetAccount(nodeAddr(0xFE))
	require.NoError(t, err)
	require.Equal(t, "500", feeAcc.Balance("USDC").String())

	global, err := node.GlobalState()
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalContractsCreated)
	require.Equal(t, uint64(1), global.TotalContractsClosed)
	require.Equal(t, "1000000", global.TotalVolume.String())

	// created, milestone completed, milestone approved, contract completed.
	stored := node.Events("trustpay.", 0)
	require.Len(t, stored, 4)
	require.Equal(t, trustpay.EventTypeContractCreated, stored[0].Event.Type)
	require.Equal(t, trustpay.EventTypeContractCompleted, stored[3].Event.Type)

	completions := node.Events(trustpay.EventTypeContractCompleted, 0)
	require.Len(t, completions, 1)
}

func TestNodeStatePersistsAcrossRestart(t *testing.T) {
	db := storage.NewMemDB()
	node := newTestNode(t, db)

	payer := nodeAddr(0x01)
	recipient := nodeAddr(0x02)
	fundNodeAccount(t, node, payer, 10_000_000)

	contract, err := node.CreateContract(payer, trustpay.CreateParams{
		Seed:         1,
		CreatorRole:  trustpay.RolePayer,
		Counterparty: recipient,
		Type:         trustpay.ContractTypeMilestone,
		Asset:        "USDC",
		Title:        "Long project",
		Terms:        "Two milestones over two months.",
		TotalAmount:  big.NewInt(2_000_000),
		Milestones: []trustpay.MilestoneInput{
			{Description: "First", Amount: big.NewInt(1_000_000)},
			{Description: "Second", Amount: big.NewInt(1_000_000)},
		},
		DeadlineDuration: 1000,
	})
	require.NoError(t, err)

	// A fresh node over the same database sees the committed state, and
	// re-initialisation does not reset the counters.
	restarted := NewNode(db)
	_, err = restarted.InitializeGlobalState(nodeAddr(0xBB), 100, nodeAddr(0xCC), 9)
	require.NoError(t, err)

	loaded, err := restarted.GetContract(contract.ID)
	require.NoError(t, err)
	require.Equal(t, "Long project", loaded.Title)

	global, err := restarted.GlobalState()
	require.NoError(t, err)
	require.Equal(t, nodeAddr(0xAA), global.Authority)
	require.Equal(t, uint64(1), global.TotalContractsCreated)
}

func TestNodeEventLogBounded(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB())
	for i := 0; i < eventLogLimit+10; i++ {
		node.Emit(nodeTestEvent{payload: &types.Event{Type: "test.event"}})
	}
	stored := node.Events("", 0)
	require.Len(t, stored, eventLogLimit)
	require.Len(t, node.Events("", 5), 5)
	// Oldest entries are evicted, so the first surviving sequence reflects the
	// overflow.
	require.Equal(t, uint64(11), stored[0].Sequence)
}

type nodeTestEvent struct {
	payload *types.Event
}

func (e nodeTestEvent) EventType() string { return e.payload.Type }

func (e nodeTestEvent) Event() *types.Event { return e.payload }
