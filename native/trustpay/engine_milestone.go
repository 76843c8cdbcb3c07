package trustpay

import "math/big"

// MarkMilestoneComplete records delivery of a milestone by the recipient. No
// funds move; the milestone waits for payer approval.
func (e *Engine) MarkMilestoneComplete(id [32]byte, caller [20]byte, index int) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	if caller != contract.Recipient {
		return nil, ErrUnauthorized
	}
	if contract.Status != ContractInProgress {
		return nil, ErrContractNotInProgress
	}
	if contract.Deadline == 0 {
		return nil, ErrContractNotAccepted
	}
	now := e.now()
	if now >= contract.Deadline {
		return nil, ErrContractExpired
	}
	if index < 0 || index >= len(contract.Milestones) {
		return nil, ErrInvalidMilestoneIndex
	}
	milestone := contract.Milestones[index]
	if milestone.Status != MilestonePending {
		return nil, ErrMilestoneNotPending
	}
	milestone.Status = MilestoneCompletedBySP
	milestone.CompletedAt = now
	if err := e.state.ContractPut(contract); err != nil {
		return nil, err
	}
	e.emit(NewMilestoneCompletedEvent(contract, index))
	return contract.Clone(), nil
}

// ApproveMilestone releases a completed milestone: the fee share goes to the
// platform fee destination, the remainder to the recipient, and the vault is
// debited by exactly the milestone amount. When the last milestone reaches a
// terminal state the contract closes and any residual balance (the still
// reserved fee) is refunded to the payer.
func (e *Engine) ApproveMilestone(id [32]byte, caller [20]byte, index int) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	if caller != contract.Payer {
		return nil, ErrUnauthorized
	}
	if contract.Status != ContractInProgress {
		return nil, ErrContractNotInProgress
	}
	if index < 0 || index >= len(contract.Milestones) {
		return nil, ErrInvalidMilestoneIndex
	}
	milestone := contract.Milestones[index]
	if milestone.Status != MilestoneCompletedBySP {
		return nil, ErrMilestoneNotCompleted
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	vault, err := e.state.VaultAddress(contract.Asset)
	if err != nil {
		return nil, err
	}

	amount := cloneBigInt(milestone.Amount)
	fee := feeShare(amount, contract.FeeBps)
	payout := new(big.Int).Sub(amount, fee)
	if payout.Sign() > 0 {
		if err := e.transferAsset(vault, contract.Recipient, contract.Asset, payout); err != nil {
			return nil, err
		}
	}
	if fee.Sign() > 0 {
		if err := e.transferAsset(vault, contract.FeeDestination, contract.Asset, fee); err != nil {
			return nil, err
		}
	}
	if err := e.state.VaultDebit(contract.ID, contract.Asset, amount); err != nil {
		return nil, err
	}

	now := e.now()
	milestone.Status = MilestoneApprovedByPayer
	milestone.ApprovedAt = now
	global.recordPaymentApproval(amount, fee, now)

	e.emit(NewMilestoneApprovedEvent(contract, index, fee.String()))

	if contract.AllMilestonesTerminal() {
		if err := e.closeContract(contract, global); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.ContractPut(contract); err != nil {
			return nil, err
		}
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	return contract.Clone(), nil
}

// Dispute freezes a completed milestone pending adjudication. Either party may
// raise it; the milestone's funds stay locked in the vault. Additional
// milestones can be disputed while the contract is already in dispute.
func (e *Engine) Dispute(id [32]byte, caller [20]byte, index int, reason string) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	if caller != contract.Payer && caller != contract.Recipient {
		return nil, ErrUnauthorizedDisputer
	}
	if contract.Status != ContractInProgress && contract.Status != ContractDisputed {
		return nil, ErrContractNotInProgress
	}
	if len(reason) < MinDisputeReasonLength || len(reason) > MaxDisputeReasonLength {
		return nil, ErrInvalidDisputeReason
	}
	if index < 0 || index >= len(contract.Milestones) {
		return nil, ErrInvalidMilestoneIndex
	}
	milestone := contract.Milestones[index]
	if milestone.Status != MilestoneCompletedBySP {
		return nil, ErrMilestoneNotDisputable
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}

	now := e.now()
	milestone.Status = MilestoneDisputed
	milestone.DisputedAt = now
	milestone.DisputeReason = reason
	milestone.DisputeID = e.disputeID(contract.ID, index, now)
	contract.Status = ContractDisputed
	global.recordDispute()

	if err := e.state.ContractPut(contract); err != nil {
		return nil, err
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(contract, index, caller))
	return contract.Clone(), nil
}

// Resolve settles a disputed milestone according to the resolver's decision:
// FavorPayer refunds the milestone amount to the payer with no fee charged,
// FavorRecipient pays out like a regular approval, Split divides the amount
// between the parties with the division remainder going to the payer. The
// milestone becomes terminally resolved; the contract returns to in-progress
// so remaining work can continue, or closes when every milestone is terminal.
func (e *Engine) Resolve(id [32]byte, caller [20]byte, index int, resolution Resolution, reason string) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	if caller != global.Authority {
		return nil, ErrUnauthorizedResolver
	}
	if !resolution.Valid() {
		return nil, ErrInvalidResolution
	}
	if len(reason) < MinDisputeReasonLength || len(reason) > MaxDisputeReasonLength {
		return nil, ErrInvalidDisputeReason
	}
	// A milestone can stay disputed after an earlier resolution returned the
	// contract to in-progress, so both statuses admit resolution; the
	// milestone-level check below is the real gate.
	if contract.Status != ContractDisputed && contract.Status != ContractInProgress {
		return nil, ErrContractNotDisputed
	}
	if index < 0 || index >= len(contract.Milestones) {
		return nil, ErrInvalidMilestoneIndex
	}
	milestone := contract.Milestones[index]
	if milestone.Status != MilestoneDisputed {
		return nil, ErrMilestoneNotDisputed
	}
	vault, err := e.state.VaultAddress(contract.Asset)
	if err != nil {
		return nil, err
	}

	amount := cloneBigInt(milestone.Amount)
	now := e.now()
	switch resolution {
	case ResolutionFavorPayer:
		if err := e.transferAsset(vault, contract.Payer, contract.Asset, amount); err != nil {
			return nil, err
		}
	case ResolutionFavorRecipient:
		fee := feeShare(amount, contract.FeeBps)
		payout := new(big.Int).Sub(amount, fee)
		if payout.Sign() > 0 {
			if err := e.transferAsset(vault, contract.Recipient, contract.Asset, payout); err != nil {
				return nil, err
			}
		}
		if fee.Sign() > 0 {
			if err := e.transferAsset(vault, contract.FeeDestination, contract.Asset, fee); err != nil {
				return nil, err
			}
		}
		global.recordPaymentApproval(amount, fee, now)
	case ResolutionSplit:
		half := new(big.Int).Div(amount, big.NewInt(2))
		remainder := new(big.Int).Sub(amount, half)
		if half.Sign() > 0 {
			if err := e.transferAsset(vault, contract.Recipient, contract.Asset, half); err != nil {
				return nil, err
			}
		}
		if remainder.Sign() > 0 {
			if err := e.transferAsset(vault, contract.Payer, contract.Asset, remainder); err != nil {
				return nil, err
			}
		}
	}
	if err := e.state.VaultDebit(contract.ID, contract.Asset, amount); err != nil {
		return nil, err
	}

	milestone.Status = MilestoneResolved
	milestone.ResolvedAt = now
	milestone.Resolution = resolution
	milestone.ResolutionReason = reason

	e.emit(NewResolvedEvent(contract, index, resolution))

	if contract.AllMilestonesTerminal() {
		if err := e.closeContract(contract, global); err != nil {
			return nil, err
		}
	} else {
		contract.Status = ContractInProgress
		if err := e.state.ContractPut(contract); err != nil {
			return nil, err
		}
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	return contract.Clone(), nil
}

// closeContract finishes a contract whose milestones are all terminal: the
// residual vault balance (whatever is left of the reserved fee) is refunded to
// the payer, the closure counter is bumped and the record is destroyed.
func (e *Engine) closeContract(contract *Contract, global *GlobalState) error {
	if err := e.refundVault(contract, contract.Payer); err != nil {
		return err
	}
	contract.Status = ContractCompleted
	global.recordContractClosed(e.now())
	if err := e.state.ContractDelete(contract.ID); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(contract))
	return nil
}
