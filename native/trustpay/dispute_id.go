package trustpay

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DisputeIDFunc produces the unique ticket identifier assigned to a milestone
// when it enters dispute. The generator is injected so tests can supply
// deterministic IDs.
type DisputeIDFunc func(contractID [32]byte, milestoneIndex int, timestamp int64) string

// DefaultDisputeID derives a six-character ticket code (two letters followed
// by four digits) from the contract identifier, milestone index and dispute
// timestamp.
func DefaultDisputeID(contractID [32]byte, milestoneIndex int, timestamp int64) string {
	seed := fmt.Sprintf("%x:%d:%d", contractID, milestoneIndex, timestamp)
	digest := ethcrypto.Keccak256([]byte(seed))
	return fmt.Sprintf("%c%c%d%d%d%d",
		'A'+digest[0]%26,
		'A'+digest[1]%26,
		digest[2]%10,
		digest[3]%10,
		digest[4]%10,
		digest[5]%10,
	)
}
