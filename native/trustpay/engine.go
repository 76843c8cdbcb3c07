package trustpay

import (
	"errors"
	"math/big"
	"time"

	"trustpay/core/events"
	"trustpay/core/types"
)

var (
	errNilState = errors.New("trustpay engine: state not configured")
)

// engineState is the ledger substrate the engine mutates. Implementations must
// apply each operation atomically with the custody transfers it issues.
type engineState interface {
	ContractPut(*Contract) error
	ContractGet(id [32]byte) (*Contract, bool)
	ContractDelete(id [32]byte) error
	GlobalGet() (*GlobalState, bool)
	GlobalPut(*GlobalState) error
	VaultCredit(id [32]byte, asset string, amt *big.Int) error
	VaultDebit(id [32]byte, asset string, amt *big.Int) error
	VaultBalance(id [32]byte, asset string) (*big.Int, error)
	VaultAddress(asset string) ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type engineEvent struct {
	evt *types.Event
}

func (e engineEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e engineEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow contract state machine with the external ledger
// substrate and event emitters. Every operation validates its preconditions
// against committed state before issuing custody transfers, so a failed
// operation leaves no partial effects.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	nowFn     func() int64
	disputeID DisputeIDFunc
}

// NewEngine creates an engine with a no-op emitter and the default clock and
// dispute-ID generator. Callers override collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		disputeID: DefaultDisputeID,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetDisputeIDFunc overrides the dispute ticket generator. Passing nil resets
// it to the default keccak-derived codes.
func (e *Engine) SetDisputeIDFunc(fn DisputeIDFunc) {
	if fn == nil {
		e.disputeID = DefaultDisputeID
		return
	}
	e.disputeID = fn
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]*big.Int)
	}
	return acc
}

func (e *Engine) loadContract(id [32]byte) (*Contract, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	contract, ok := e.state.ContractGet(id)
	if !ok {
		return nil, ErrContractNotFound
	}
	return contract, nil
}

func (e *Engine) loadGlobal() (*GlobalState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	global, ok := e.state.GlobalGet()
	if !ok {
		return nil, ErrGlobalStateNotInitialised
	}
	return global, nil
}

// transferAsset moves tokens between two ledger accounts, failing without
// side-effects when the source balance is insufficient.
func (e *Engine) transferAsset(from, to [20]byte, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	balance := fromAcc.Balance(asset)
	if balance.Cmp(amt) < 0 {
		return errors.New("trustpay: insufficient balance")
	}
	fromAcc.SetBalance(asset, new(big.Int).Sub(balance, amt))
	toAcc.SetBalance(asset, new(big.Int).Add(toAcc.Balance(asset), amt))
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// feeShare computes amount * feeBps / 10000, rounded down.
func feeShare(amount *big.Int, feeBps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feeBps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

// InitializeGlobalState writes the one-time platform record: resolver
// authority, fee configuration and aggregate counters. Calling it again once a
// record exists is a no-op so restarts do not reset counters.
func (e *Engine) InitializeGlobalState(authority [20]byte, feeBps uint32, feeDestination [20]byte, tokenDecimals uint8) (*GlobalState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if existing, ok := e.state.GlobalGet(); ok {
		return existing, nil
	}
	if feeBps > feeDenominator {
		return nil, ErrInvalidAmount
	}
	global := NewGlobalState(authority, feeBps, feeDestination, tokenDecimals, e.now())
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	return global.Clone(), nil
}

// GlobalStateSnapshot returns a copy of the platform record.
func (e *Engine) GlobalStateSnapshot() (*GlobalState, error) {
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	return global.Clone(), nil
}

// Get returns a copy of the stored contract.
func (e *Engine) Get(id [32]byte) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	return contract.Clone(), nil
}

// MilestoneInput describes one milestone of a creation request.
type MilestoneInput struct {
	Description string
	Amount      *big.Int
}

// CreateParams carries the full creation request. The caller is the creator;
// CreatorRole decides whether they act as payer or recipient and Counterparty
// names the other side.
type CreateParams struct {
	Seed             uint64
	CreatorRole      Role
	Counterparty     [20]byte
	Type             ContractType
	Asset            string
	Title            string
	Terms            string
	TotalAmount      *big.Int
	Milestones       []MilestoneInput
	DeadlineDuration int64
}

// Create validates and persists a new contract. Payer-created contracts
// deposit the total amount plus the reserved fee into the vault immediately
// and start in progress; recipient-created contracts wait in pending until the
// payer accepts. The platform fee is snapshotted from the global record either
// way.
func (e *Engine) Create(caller [20]byte, params CreateParams) (*Contract, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !params.CreatorRole.Valid() {
		return nil, ErrInvalidRole
	}
	if !params.Type.Valid() {
		return nil, ErrInvalidContractType
	}
	if params.TotalAmount == nil || params.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(params.Title) > MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	if len(params.Terms) < MinTermsLength || len(params.Terms) > MaxTermsLength {
		return nil, ErrTermsAndConditionsTooLong
	}
	if params.DeadlineDuration <= 0 {
		return nil, ErrInvalidDeadline
	}
	if params.DeadlineDuration > maxDeadlineDurationSeconds {
		return nil, ErrDeadlineTooFar
	}
	asset, err := NormalizeAsset(params.Asset)
	if err != nil {
		return nil, err
	}

	var payer, recipient [20]byte
	switch params.CreatorRole {
	case RolePayer:
		payer, recipient = caller, params.Counterparty
	case RoleRecipient:
		payer, recipient = params.Counterparty, caller
	}

	milestones, err := buildMilestones(params.Type, params.TotalAmount, params.Milestones)
	if err != nil {
		return nil, err
	}

	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}

	id := ContractID(payer, params.Seed)
	if _, exists := e.state.ContractGet(id); exists {
		return nil, ErrContractExists
	}

	now := e.now()
	fee := feeShare(params.TotalAmount, global.FeeBps)
	contract := &Contract{
		ID:             id,
		Type:           params.Type,
		Seed:           params.Seed,
		Payer:          payer,
		Recipient:      recipient,
		Asset:          asset,
		Title:          params.Title,
		Terms:          params.Terms,
		TotalAmount:    cloneBigInt(params.TotalAmount),
		CreatedAt:      now,
		Status:         ContractPending,
		FeeBps:         global.FeeBps,
		FeeDestination: global.FeeDestination,
		ReservedFee:    fee,
		Milestones:     milestones,
	}

	if params.CreatorRole == RolePayer {
		if err := e.depositToVault(contract, payer); err != nil {
			return nil, err
		}
		contract.AcceptedAt = now
		contract.Deadline = now + params.DeadlineDuration
		contract.Status = ContractInProgress
	}

	if err := e.state.ContractPut(contract); err != nil {
		return nil, err
	}
	global.TotalContractsCreated++
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(contract))
	return contract.Clone(), nil
}

func buildMilestones(contractType ContractType, totalAmount *big.Int, inputs []MilestoneInput) ([]*Milestone, error) {
	if contractType == ContractTypeOneTime {
		// One-time contracts carry a single synthetic milestone covering the
		// full amount; explicit milestones are rejected.
		if len(inputs) > 0 {
			return nil, ErrTooManyMilestones
		}
		return []*Milestone{{
			Description: oneTimeMilestoneDescription,
			Amount:      cloneBigInt(totalAmount),
			Status:      MilestonePending,
		}}, nil
	}
	if len(inputs) == 0 {
		return nil, ErrNoMilestones
	}
	if len(inputs) > MaxMilestones {
		return nil, ErrTooManyMilestones
	}
	milestones := make([]*Milestone, 0, len(inputs))
	sum := big.NewInt(0)
	for _, input := range inputs {
		if len(input.Description) > MaxMilestoneDescriptionLength {
			return nil, ErrMilestoneDescriptionTooLong
		}
		if input.Amount == nil || input.Amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		sum.Add(sum, input.Amount)
		milestones = append(milestones, &Milestone{
			Description: input.Description,
			Amount:      cloneBigInt(input.Amount),
			Status:      MilestonePending,
		})
	}
	if sum.Cmp(totalAmount) != 0 {
		return nil, ErrMilestoneAmountMismatch
	}
	return milestones, nil
}

// depositToVault moves totalAmount + reservedFee from the depositor into the
// contract vault.
func (e *Engine) depositToVault(contract *Contract, depositor [20]byte) error {
	vault, err := e.state.VaultAddress(contract.Asset)
	if err != nil {
		return err
	}
	deposit := new(big.Int).Add(contract.TotalAmount, contract.ReservedFee)
	if err := e.transferAsset(depositor, vault, contract.Asset, deposit); err != nil {
		return err
	}
	return e.state.VaultCredit(contract.ID, contract.Asset, deposit)
}

// Accept funds a recipient-created contract. Only the payer may accept, only
// while pending, and the new deadline must be a positive duration from now.
func (e *Engine) Accept(id [32]byte, caller [20]byte, deadlineDuration int64) (*Contract, error) {
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	if contract.Status != ContractPending {
		return nil, ErrContractNotPending
	}
	if caller != contract.Payer {
		return nil, ErrUnauthorized
	}
	if deadlineDuration <= 0 {
		return nil, ErrInvalidDeadline
	}
	if deadlineDuration > maxDeadlineDurationSeconds {
		return nil, ErrDeadlineTooFar
	}
	if err := e.depositToVault(contract, contract.Payer); err != nil {
		return nil, err
	}
	now := e.now()
	contract.AcceptedAt = now
	contract.Deadline = now + deadlineDuration
	contract.Status = ContractInProgress
	if err := e.state.ContractPut(contract); err != nil {
		return nil, err
	}
	e.emit(NewAcceptedEvent(contract))
	return contract.Clone(), nil
}

// Decline lets the payer reject a pending contract. Any vault balance is
// returned to the payer (the only party with a deposit obligation) and the
// record is destroyed.
func (e *Engine) Decline(id [32]byte, caller [20]byte) error {
	contract, err := e.loadContract(id)
	if err != nil {
		return err
	}
	if contract.Status != ContractPending {
		return ErrContractNotPending
	}
	if caller != contract.Payer {
		return ErrUnauthorized
	}
	if err := e.refundVault(contract, contract.Payer); err != nil {
		return err
	}
	contract.Status = ContractCancelled
	if err := e.state.ContractDelete(contract.ID); err != nil {
		return err
	}
	e.emit(NewDeclinedEvent(contract))
	return nil
}

// Cancel lets the original creator withdraw a pending contract. The creator is
// inferred from the vault: a funded vault means the payer created (and funded)
// the contract, an empty vault means the recipient created it. The refund goes
// to the canceller and the record is destroyed.
func (e *Engine) Cancel(id [32]byte, caller [20]byte) error {
	contract, err := e.loadContract(id)
	if err != nil {
		return err
	}
	if contract.Status != ContractPending {
		return ErrContractNotPending
	}
	balance, err := e.state.VaultBalance(contract.ID, contract.Asset)
	if err != nil {
		return err
	}
	creator := contract.Recipient
	if balance != nil && balance.Sign() > 0 {
		creator = contract.Payer
	}
	if caller != creator {
		return ErrUnauthorized
	}
	if err := e.refundVault(contract, caller); err != nil {
		return err
	}
	contract.Status = ContractCancelled
	if err := e.state.ContractDelete(contract.ID); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(contract))
	return nil
}

// refundVault returns the whole remaining vault balance to the recipient
// address and zeroes the custody record.
func (e *Engine) refundVault(contract *Contract, to [20]byte) error {
	balance, err := e.state.VaultBalance(contract.ID, contract.Asset)
	if err != nil {
		return err
	}
	if balance == nil || balance.Sign() == 0 {
		return nil
	}
	vault, err := e.state.VaultAddress(contract.Asset)
	if err != nil {
		return err
	}
	if err := e.transferAsset(vault, to, contract.Asset, balance); err != nil {
		return err
	}
	return e.state.VaultDebit(contract.ID, contract.Asset, balance)
}
