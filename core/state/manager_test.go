package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trustpay/native/trustpay"
	"trustpay/storage"
)

func testContract() *trustpay.Contract {
	var payer, recipient [20]byte
	payer[0] = 0x01
	recipient[0] = 0x02
	return &trustpay.Contract{
		ID:          trustpay.ContractID(payer, 1),
		Type:        trustpay.ContractTypeMilestone,
		Seed:        1,
		Payer:       payer,
		Recipient:   recipient,
		Asset:       "usdc",
		Title:       "Roundtrip",
		Terms:       "Persisted and reloaded without loss.",
		TotalAmount: big.NewInt(100),
		CreatedAt:   1_000_000,
		Status:      trustpay.ContractInProgress,
		ReservedFee: big.NewInt(0),
		Milestones: []*trustpay.Milestone{
			{Description: "a", Amount: big.NewInt(40), Status: trustpay.MilestonePending},
			{Description: "b", Amount: big.NewInt(60), Status: trustpay.MilestoneDisputed, DisputeID: "AB1234"},
		},
	}
}

func TestContractRoundtrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	contract := testContract()

	require.NoError(t, manager.ContractPut(contract))
	loaded, ok := manager.ContractGet(contract.ID)
	require.True(t, ok)
	// Storage canonicalises the asset symbol.
	require.Equal(t, "USDC", loaded.Asset)
	require.Equal(t, contract.Title, loaded.Title)
	require.Equal(t, contract.TotalAmount.String(), loaded.TotalAmount.String())
	require.Len(t, loaded.Milestones, 2)
	require.Equal(t, trustpay.MilestoneDisputed, loaded.Milestones[1].Status)
	require.Equal(t, "AB1234", loaded.Milestones[1].DisputeID)

	require.NoError(t, manager.ContractDelete(contract.ID))
	_, ok = manager.ContractGet(contract.ID)
	require.False(t, ok)
}

func TestContractPutRejectsInvalid(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	contract := testContract()
	contract.Milestones[0].Amount = big.NewInt(1)
	require.ErrorIs(t, manager.ContractPut(contract), trustpay.ErrMilestoneAmountMismatch)
}

func TestGlobalRoundtrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	_, ok := manager.GlobalGet()
	require.False(t, ok)

	var authority, feeDest [20]byte
	authority[0] = 0xAA
	feeDest[0] = 0xFE
	global := trustpay.NewGlobalState(authority, 5, feeDest, 6, 1_000_000)
	global.TotalContractsCreated = 3
	global.TotalVolume = big.NewInt(12345)
	require.NoError(t, manager.GlobalPut(global))

	loaded, ok := manager.GlobalGet()
	require.True(t, ok)
	require.Equal(t, authority, loaded.Authority)
	require.Equal(t, uint64(3), loaded.TotalContractsCreated)
	require.Equal(t, "12345", loaded.TotalVolume.String())
}

func TestVaultCreditDebit(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	var payer [20]byte
	payer[0] = 0x01
	id := trustpay.ContractID(payer, 1)

	balance, err := manager.VaultBalance(id, "USDC")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, manager.VaultCredit(id, "USDC", big.NewInt(100)))
	require.NoError(t, manager.VaultCredit(id, "USDC", big.NewInt(50)))
	balance, err = manager.VaultBalance(id, "USDC")
	require.NoError(t, err)
	require.Equal(t, "150", balance.String())

	require.Error(t, manager.VaultDebit(id, "USDC", big.NewInt(151)))
	require.NoError(t, manager.VaultDebit(id, "USDC", big.NewInt(150)))
	balance, err = manager.VaultBalance(id, "USDC")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestVaultAddressDeterministic(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	first, err := manager.VaultAddress("usdc")
	require.NoError(t, err)
	second, err := manager.VaultAddress("USDC")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := manager.VaultAddress("DAI")
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	_, err = manager.VaultAddress("not an asset")
	require.ErrorIs(t, err, trustpay.ErrInvalidAsset)
}

func TestAccountRoundtrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := []byte{0x01, 0x02, 0x03}

	account, err := manager.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, account.Balance("USDC").Sign())

	account.SetBalance("USDC", big.NewInt(777))
	account.Nonce = 9
	require.NoError(t, manager.PutAccount(addr, account))

	loaded, err := manager.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, "777", loaded.Balance("USDC").String())
	require.Equal(t, uint64(9), loaded.Nonce)

	require.Error(t, manager.PutAccount(addr, nil))
}
