package trustpay

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAsset(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"usdc", "USDC", false},
		{"  Usdc ", "USDC", false},
		{"USDT0", "USDT0", false},
		{"", "", true},
		{"toolongsymbol", "", true},
		{"usd-c", "", true},
		{"usd c", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeAsset(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidAsset, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestContractIDDeterministic(t *testing.T) {
	payer := testAddr(0x01)
	first := ContractID(payer, 42)
	second := ContractID(payer, 42)
	require.Equal(t, first, second)

	require.NotEqual(t, first, ContractID(payer, 43))
	require.NotEqual(t, first, ContractID(testAddr(0x02), 42))
}

func TestFeeShare(t *testing.T) {
	require.Equal(t, "2500", feeShare(big.NewInt(5_000_000), 5).String())
	require.Equal(t, "0", feeShare(big.NewInt(100), 5).String())
	require.Equal(t, "100", feeShare(big.NewInt(100), 10_000).String())
	require.Equal(t, "0", feeShare(nil, 5).String())
}

func TestContractHelpers(t *testing.T) {
	contract := &Contract{
		TotalAmount: big.NewInt(300),
		Milestones: []*Milestone{
			{Description: "a", Amount: big.NewInt(100), Status: MilestoneApprovedByPayer},
			{Description: "b", Amount: big.NewInt(100), Status: MilestoneDisputed},
			{Description: "c", Amount: big.NewInt(100), Status: MilestonePending},
		},
	}
	require.Equal(t, "300", contract.MilestoneSum().String())
	require.False(t, contract.AllMilestonesTerminal())
	require.True(t, contract.HasActiveDisputes())
	require.Equal(t, "100", contract.ApprovedAmount().String())

	contract.Milestones[1].Status = MilestoneResolved
	contract.Milestones[2].Status = MilestoneApprovedByPayer
	require.True(t, contract.AllMilestonesTerminal())
	require.False(t, contract.HasActiveDisputes())
}

func TestContractCloneIsDeep(t *testing.T) {
	contract := &Contract{
		ID:          ContractID(testAddr(0x01), 1),
		TotalAmount: big.NewInt(100),
		ReservedFee: big.NewInt(1),
		Milestones: []*Milestone{
			{Description: "a", Amount: big.NewInt(100), Status: MilestonePending},
		},
	}
	clone := contract.Clone()
	clone.TotalAmount.SetInt64(999)
	clone.Milestones[0].Amount.SetInt64(999)
	clone.Milestones[0].Status = MilestoneDisputed

	require.Equal(t, "100", contract.TotalAmount.String())
	require.Equal(t, "100", contract.Milestones[0].Amount.String())
	require.Equal(t, MilestonePending, contract.Milestones[0].Status)
}

func TestSanitizeContract(t *testing.T) {
	base := func() *Contract {
		return &Contract{
			ID:          ContractID(testAddr(0x01), 1),
			Asset:       "usdc",
			TotalAmount: big.NewInt(100),
			ReservedFee: big.NewInt(0),
			Status:      ContractInProgress,
			Milestones: []*Milestone{
				{Description: "a", Amount: big.NewInt(100), Status: MilestonePending},
			},
		}
	}

	sanitized, err := SanitizeContract(base())
	require.NoError(t, err)
	require.Equal(t, "USDC", sanitized.Asset)

	broken := base()
	broken.Milestones[0].Amount = big.NewInt(50)
	_, err = SanitizeContract(broken)
	require.ErrorIs(t, err, ErrMilestoneAmountMismatch)

	broken = base()
	broken.Milestones = nil
	_, err = SanitizeContract(broken)
	require.ErrorIs(t, err, ErrTooManyMilestones)

	broken = base()
	broken.Asset = "not an asset"
	_, err = SanitizeContract(broken)
	require.ErrorIs(t, err, ErrInvalidAsset)
}

func TestDefaultDisputeIDFormat(t *testing.T) {
	id := ContractID(testAddr(0x01), 1)
	first := DefaultDisputeID(id, 0, 1000)
	require.Len(t, first, 6)
	require.GreaterOrEqual(t, first[0], byte('A'))
	require.LessOrEqual(t, first[0], byte('Z'))
	require.GreaterOrEqual(t, first[1], byte('A'))
	require.LessOrEqual(t, first[1], byte('Z'))
	for i := 2; i < 6; i++ {
		require.GreaterOrEqual(t, first[i], byte('0'))
		require.LessOrEqual(t, first[i], byte('9'))
	}

	require.Equal(t, first, DefaultDisputeID(id, 0, 1000))
	require.NotEqual(t, first, DefaultDisputeID(id, 1, 1000))
	require.NotEqual(t, first, DefaultDisputeID(id, 0, 1001))
}
