package trustpay

import "errors"

// Input validation failures. Fully recoverable by the caller correcting the
// request; checked before any state mutation.
var (
	ErrInvalidAmount                = errors.New("trustpay: invalid amount")
	ErrTitleTooLong                 = errors.New("trustpay: title too long")
	ErrNoMilestones                 = errors.New("trustpay: no milestones provided")
	ErrTooManyMilestones            = errors.New("trustpay: too many milestones")
	ErrMilestoneDescriptionTooLong  = errors.New("trustpay: milestone description too long")
	ErrTermsAndConditionsTooLong    = errors.New("trustpay: terms and conditions length out of range")
	ErrInvalidRole                  = errors.New("trustpay: invalid creator role")
	ErrInvalidContractType          = errors.New("trustpay: invalid contract type")
	ErrMilestoneAmountMismatch      = errors.New("trustpay: milestone amounts do not sum to total")
	ErrInvalidDeadline              = errors.New("trustpay: invalid deadline duration")
	ErrDeadlineTooFar               = errors.New("trustpay: deadline too far in the future")
	ErrInvalidDisputeReason         = errors.New("trustpay: dispute reason length out of range")
	ErrInvalidResolution            = errors.New("trustpay: invalid resolution value")
	ErrInvalidAsset                 = errors.New("trustpay: invalid asset symbol")
)

// State precondition violations. Indicate the caller is out of sync with the
// committed contract state.
var (
	ErrContractNotFound       = errors.New("trustpay: contract not found")
	ErrContractExists         = errors.New("trustpay: contract already exists")
	ErrContractNotPending     = errors.New("trustpay: contract not pending")
	ErrContractNotInProgress  = errors.New("trustpay: contract not in progress")
	ErrContractNotDisputed    = errors.New("trustpay: contract not disputed")
	ErrContractNotAccepted    = errors.New("trustpay: contract not accepted")
	ErrContractExpired        = errors.New("trustpay: contract deadline has passed")
	ErrInvalidMilestoneIndex  = errors.New("trustpay: invalid milestone index")
	ErrMilestoneNotPending    = errors.New("trustpay: milestone not pending")
	ErrMilestoneNotCompleted  = errors.New("trustpay: milestone not completed by recipient")
	ErrMilestoneNotDisputable = errors.New("trustpay: milestone not disputable")
	ErrMilestoneNotDisputed   = errors.New("trustpay: milestone not disputed")
)

// Authorization violations.
var (
	ErrUnauthorized         = errors.New("trustpay: caller not authorized")
	ErrUnauthorizedDisputer = errors.New("trustpay: only payer or recipient may dispute")
	ErrUnauthorizedResolver = errors.New("trustpay: only the resolver authority may resolve")
)

// Platform state failures.
var (
	ErrGlobalStateNotInitialised = errors.New("trustpay: global ledger state not initialised")
)
