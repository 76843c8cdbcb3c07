package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"trustpay/crypto"
	"trustpay/native/trustpay"
	"trustpay/observability"
)

type createParams struct {
	Caller           string           `json:"caller"`
	Seed             uint64           `json:"seed"`
	Role             string           `json:"role"`
	Counterparty     string           `json:"counterparty"`
	Type             string           `json:"type"`
	Asset            string           `json:"asset"`
	Title            string           `json:"title"`
	Terms            string           `json:"terms"`
	TotalAmount      string           `json:"totalAmount"`
	Milestones       []milestoneParam `json:"milestones,omitempty"`
	DeadlineDuration int64            `json:"deadlineDuration"`
}

type milestoneParam struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type contractCallParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type milestoneCallParams struct {
	Caller         string `json:"caller"`
	ID             string `json:"id"`
	MilestoneIndex int    `json:"milestoneIndex"`
	Reason         string `json:"reason,omitempty"`
	Resolution     *uint8 `json:"resolution,omitempty"`
}

type acceptParams struct {
	Caller           string `json:"caller"`
	ID               string `json:"id"`
	DeadlineDuration int64  `json:"deadlineDuration"`
}

type getParams struct {
	ID string `json:"id"`
}

type balanceParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// milestoneView is the RPC rendering of a milestone. Amounts travel as decimal
// strings so callers never lose precision to float parsing.
type milestoneView struct {
	Description      string `json:"description"`
	Amount           string `json:"amount"`
	Status           string `json:"status"`
	CompletedAt      int64  `json:"completedAt,omitempty"`
	ApprovedAt       int64  `json:"approvedAt,omitempty"`
	DisputedAt       int64  `json:"disputedAt,omitempty"`
	ResolvedAt       int64  `json:"resolvedAt,omitempty"`
	DisputeReason    string `json:"disputeReason,omitempty"`
	DisputeID        string `json:"disputeId,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	ResolutionReason string `json:"resolutionReason,omitempty"`
}

type contractView struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Seed           uint64          `json:"seed"`
	Payer          string          `json:"payer"`
	Recipient      string          `json:"recipient"`
	Asset          string          `json:"asset"`
	Title          string          `json:"title"`
	Terms          string          `json:"terms"`
	TotalAmount    string          `json:"totalAmount"`
	Deadline       int64           `json:"deadline,omitempty"`
	AcceptedAt     int64           `json:"acceptedAt,omitempty"`
	CreatedAt      int64           `json:"createdAt"`
	Status         string          `json:"status"`
	FeeBps         uint32          `json:"feeBps"`
	FeeDestination string          `json:"feeDestination"`
	ReservedFee    string          `json:"reservedFee"`
	Milestones     []milestoneView `json:"milestones"`
}

type globalStateView struct {
	Authority             string `json:"authority"`
	TotalContractsCreated uint64 `json:"totalContractsCreated"`
	TotalContractsClosed  uint64 `json:"totalContractsClosed"`
	TotalConfirmations    uint64 `json:"totalConfirmations"`
	TotalDisputes         uint64 `json:"totalDisputes"`
	FeeBps                uint32 `json:"feeBps"`
	FeeDestination        string `json:"feeDestination"`
	TotalFeesCollected    string `json:"totalFeesCollected"`
	TotalVolume           string `json:"totalVolume"`
	HighWatermarkVolume   string `json:"highWatermarkVolume"`
	LastVolumeUpdate      int64  `json:"lastVolumeUpdate"`
	TokenDecimals         uint8  `json:"tokenDecimals"`
}

type eventView struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatAddress(raw [20]byte) string {
	return crypto.NewAddress(crypto.TrustPayPrefix, append([]byte(nil), raw[:]...)).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func contractToView(c *trustpay.Contract) contractView {
	contractType := "one_time"
	if c.Type == trustpay.ContractTypeMilestone {
		contractType = "milestone"
	}
	view := contractView{
		ID:             "0x" + hex.EncodeToString(c.ID[:]),
		Type:           contractType,
		Seed:           c.Seed,
		Payer:          formatAddress(c.Payer),
		Recipient:      formatAddress(c.Recipient),
		Asset:          c.Asset,
		Title:          c.Title,
		Terms:          c.Terms,
		TotalAmount:    formatAmount(c.TotalAmount),
		Deadline:       c.Deadline,
		AcceptedAt:     c.AcceptedAt,
		CreatedAt:      c.CreatedAt,
		Status:         c.Status.String(),
		FeeBps:         c.FeeBps,
		FeeDestination: formatAddress(c.FeeDestination),
		ReservedFee:    formatAmount(c.ReservedFee),
		Milestones:     make([]milestoneView, 0, len(c.Milestones)),
	}
	for _, m := range c.Milestones {
		mv := milestoneView{
			Description:      m.Description,
			Amount:           formatAmount(m.Amount),
			Status:           m.Status.String(),
			CompletedAt:      m.CompletedAt,
			ApprovedAt:       m.ApprovedAt,
			DisputedAt:       m.DisputedAt,
			ResolvedAt:       m.ResolvedAt,
			DisputeReason:    m.DisputeReason,
			DisputeID:        m.DisputeID,
			ResolutionReason: m.ResolutionReason,
		}
		if m.Status == trustpay.MilestoneResolved {
			mv.Resolution = m.Resolution.String()
		}
		view.Milestones = append(view.Milestones, mv)
	}
	return view
}

func globalToView(g *trustpay.GlobalState) globalStateView {
	return globalStateView{
		Authority:             formatAddress(g.Authority),
		TotalContractsCreated: g.TotalContractsCreated,
		TotalContractsClosed:  g.TotalContractsClosed,
		TotalConfirmations:    g.TotalConfirmations,
		TotalDisputes:         g.TotalDisputes,
		FeeBps:                g.FeeBps,
		FeeDestination:        formatAddress(g.FeeDestination),
		TotalFeesCollected:    formatAmount(g.TotalFeesCollected),
		TotalVolume:           formatAmount(g.TotalVolume),
		HighWatermarkVolume:   formatAmount(g.HighWatermarkVolume),
		LastVolumeUpdate:      g.LastVolumeUpdate,
		TokenDecimals:         g.TokenDecimals,
	}
}

func parseAddressParam(field, value string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address", field), Data: err.Error()}
	}
	return addr.Fixed(), nil
}

func parseContractIDParam(value string) ([32]byte, *RPCError) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return id, &RPCError{Code: codeInvalidParams, Message: "invalid contract id", Data: value}
	}
	copy(id[:], raw)
	return id, nil
}

func parseAmountParam(field, value string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s amount", field), Data: value}
	}
	return amount, nil
}

// engineErrorCode maps engine sentinels onto JSON-RPC error codes so clients
// can distinguish bad input from failed preconditions.
func engineErrorCode(err error) int {
	switch {
	case errors.Is(err, trustpay.ErrContractNotFound):
		return codeNotFound
	case errors.Is(err, trustpay.ErrUnauthorized),
		errors.Is(err, trustpay.ErrUnauthorizedDisputer),
		errors.Is(err, trustpay.ErrUnauthorizedResolver):
		return codeForbidden
	case errors.Is(err, trustpay.ErrInvalidAmount),
		errors.Is(err, trustpay.ErrTitleTooLong),
		errors.Is(err, trustpay.ErrNoMilestones),
		errors.Is(err, trustpay.ErrTooManyMilestones),
		errors.Is(err, trustpay.ErrMilestoneDescriptionTooLong),
		errors.Is(err, trustpay.ErrTermsAndConditionsTooLong),
		errors.Is(err, trustpay.ErrInvalidRole),
		errors.Is(err, trustpay.ErrInvalidContractType),
		errors.Is(err, trustpay.ErrMilestoneAmountMismatch),
		errors.Is(err, trustpay.ErrInvalidDeadline),
		errors.Is(err, trustpay.ErrDeadlineTooFar),
		errors.Is(err, trustpay.ErrInvalidDisputeReason),
		errors.Is(err, trustpay.ErrInvalidResolution),
		errors.Is(err, trustpay.ErrInvalidAsset),
		errors.Is(err, trustpay.ErrInvalidMilestoneIndex):
		return codeInvalidParams
	case errors.Is(err, trustpay.ErrContractExists),
		errors.Is(err, trustpay.ErrContractNotPending),
		errors.Is(err, trustpay.ErrContractNotInProgress),
		errors.Is(err, trustpay.ErrContractNotDisputed),
		errors.Is(err, trustpay.ErrContractNotAccepted),
		errors.Is(err, trustpay.ErrContractExpired),
		errors.Is(err, trustpay.ErrMilestoneNotPending),
		errors.Is(err, trustpay.ErrMilestoneNotCompleted),
		errors.Is(err, trustpay.ErrMilestoneNotDisputable),
		errors.Is(err, trustpay.ErrMilestoneNotDisputed),
		errors.Is(err, trustpay.ErrGlobalStateNotInitialised):
		return codePrecondition
	default:
		return codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, id int, err error) {
	code := engineErrorCode(err)
	status := http.StatusBadRequest
	switch code {
	case codeNotFound:
		status = http.StatusNotFound
	case codeForbidden:
		status = http.StatusForbidden
	case codeServerError:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handleCreate(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params createParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	counterparty, rpcErr := parseAddressParam("counterparty", params.Counterparty)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	var role trustpay.Role
	switch strings.ToLower(strings.TrimSpace(params.Role)) {
	case "payer":
		role = trustpay.RolePayer
	case "recipient":
		role = trustpay.RoleRecipient
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "role must be \"payer\" or \"recipient\"", params.Role)
		return
	}
	var contractType trustpay.ContractType
	switch strings.ToLower(strings.TrimSpace(params.Type)) {
	case "one_time", "onetime":
		contractType = trustpay.ContractTypeOneTime
	case "milestone":
		contractType = trustpay.ContractTypeMilestone
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "type must be \"one_time\" or \"milestone\"", params.Type)
		return
	}
	totalAmount, rpcErr := parseAmountParam("total", params.TotalAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	milestones := make([]trustpay.MilestoneInput, 0, len(params.Milestones))
	for i, m := range params.Milestones {
		amount, rpcErr := parseAmountParam(fmt.Sprintf("milestone %d", i), m.Amount)
		if rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		milestones = append(milestones, trustpay.MilestoneInput{Description: m.Description, Amount: amount})
	}

	contract, err := s.node.CreateContract(caller, trustpay.CreateParams{
		Seed:             params.Seed,
		CreatorRole:      role,
		Counterparty:     counterparty,
		Type:             contractType,
		Asset:            params.Asset,
		Title:            params.Title,
		Terms:            params.Terms,
		TotalAmount:      totalAmount,
		Milestones:       milestones,
		DeadlineDuration: params.DeadlineDuration,
	})
	observability.Metrics().Observe("create", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleAccept(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params acceptParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	contract, err := s.node.AcceptContract(id, caller, params.DeadlineDuration)
	observability.Metrics().Observe("accept", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleDecline(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params contractCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	err := s.node.DeclineContract(id, caller)
	observability.Metrics().Observe("decline", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "declined"})
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params contractCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	err := s.node.CancelContract(id, caller)
	observability.Metrics().Observe("cancel", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "cancelled"})
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params milestoneCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	contract, err := s.node.MarkMilestoneComplete(id, caller, params.MilestoneIndex)
	observability.Metrics().Observe("mark_complete", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleApprove(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params milestoneCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	contract, err := s.node.ApproveMilestone(id, caller, params.MilestoneIndex)
	observability.Metrics().Observe("approve", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleDispute(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params milestoneCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	contract, err := s.node.DisputeMilestone(id, caller, params.MilestoneIndex, params.Reason)
	observability.Metrics().Observe("dispute", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleResolve(w http.ResponseWriter, req *RPCRequest) {
	start := time.Now()
	var params milestoneCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, id, rpcErr := parseCallerAndID(params.Caller, params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if params.Resolution == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "resolution is required", nil)
		return
	}
	contract, err := s.node.ResolveDispute(id, caller, params.MilestoneIndex, trustpay.Resolution(*params.Resolution), params.Reason)
	observability.Metrics().Observe("resolve", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleGet(w http.ResponseWriter, req *RPCRequest) {
	var params getParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, rpcErr := parseContractIDParam(params.ID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	contract, err := s.node.GetContract(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractToView(contract))
}

func (s *Server) handleGlobalState(w http.ResponseWriter, req *RPCRequest) {
	global, err := s.node.GlobalState()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, globalToView(global))
}

func (s *Server) handleBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	asset, err := trustpay.NormalizeAsset(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), params.Asset)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": params.Address,
		"asset":   asset,
		"balance": formatAmount(account.Balance(asset)),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) {
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	stored := s.node.Events(params.Prefix, params.Limit)
	views := make([]eventView, 0, len(stored))
	for _, entry := range stored {
		views = append(views, eventView{
			Sequence:   entry.Sequence,
			Type:       entry.Event.Type,
			Attributes: entry.Event.Attributes,
		})
	}
	writeResult(w, req.ID, views)
}

func parseCallerAndID(callerStr, idStr string) ([20]byte, [32]byte, *RPCError) {
	caller, rpcErr := parseAddressParam("caller", callerStr)
	if rpcErr != nil {
		return [20]byte{}, [32]byte{}, rpcErr
	}
	id, rpcErr := parseContractIDParam(idStr)
	if rpcErr != nil {
		return [20]byte{}, [32]byte{}, rpcErr
	}
	return caller, id, nil
}
