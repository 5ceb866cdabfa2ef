package rpc

import (
	"context"
	"errors"

	"qugate/core/ledger"
	"qugate/native/gates"
	"qugate/services/journal"
)

func (s *Server) routes() map[string]method {
	return map[string]method{
		"gate_create":    {handler: s.handleCreate, caller: true},
		"gate_send":      {handler: s.handleSend, caller: true},
		"gate_close":     {handler: s.handleClose, caller: true},
		"gate_update":    {handler: s.handleUpdate, caller: true},
		"gate_get":       {handler: s.handleGet},
		"gate_count":     {handler: s.handleCount},
		"gate_fees":      {handler: s.handleFees},
		"gate_events":    {handler: s.handleEvents},
		"gate_endEpoch":  {handler: s.handleEndEpoch, admin: true},
		"ledger_balance": {handler: s.handleBalance},
		"ledger_send":    {handler: s.handleLedgerSend, caller: true},
		"node_status":    {handler: s.handleStatus},
	}
}

// nodeError maps a node failure onto a JSON-RPC error. Gate-level rejections
// never reach here; they travel as status codes in the result.
func nodeError(err error) *RPCError {
	if errors.Is(err, ledger.ErrReservedAccount) {
		return &RPCError{Code: codeInvalidParams, Message: "reserved account", Data: err.Error()}
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return &RPCError{Code: codeInsufficientFunds, Message: "insufficient balance for attached amount", Data: err.Error()}
	}
	return &RPCError{Code: codeServerError, Message: "node error", Data: err.Error()}
}

func (s *Server) handleCreate(ctx context.Context, c *call) (any, *RPCError) {
	var p CreateGateParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	mode, err := gates.ParseMode(p.Mode)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid mode", Data: err.Error()}
	}
	res, err := s.node.CreateGate(c.caller, p.Paid, p.config(mode))
	if err != nil {
		return nil, nodeError(err)
	}
	s.procedures.Record(ctx, "create", res.Status.String(), p.Paid)
	return CreateGateResult{StatusResult: statusResult(res.Status), GateID: res.GateID, FeePaid: res.FeePaid}, nil
}

func (s *Server) handleSend(ctx context.Context, c *call) (any, *RPCError) {
	var p SendParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	status, err := s.node.SendToGate(c.caller, p.GateID, p.Amount)
	if err != nil {
		return nil, nodeError(err)
	}
	s.procedures.Record(ctx, "send", status.String(), p.Amount)
	return statusResult(status), nil
}

func (s *Server) handleClose(ctx context.Context, c *call) (any, *RPCError) {
	var p CloseParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	status, err := s.node.CloseGate(c.caller, p.GateID, p.Reward)
	if err != nil {
		return nil, nodeError(err)
	}
	s.procedures.Record(ctx, "close", status.String(), p.Reward)
	return statusResult(status), nil
}

// handleUpdate ignores any mode in the params: a gate keeps the mode it was
// created with.
func (s *Server) handleUpdate(ctx context.Context, c *call) (any, *RPCError) {
	var p UpdateParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	status, err := s.node.UpdateGate(c.caller, p.Reward, p.GateID, p.config(gates.ModeSplit))
	if err != nil {
		return nil, nodeError(err)
	}
	s.procedures.Record(ctx, "update", status.String(), p.Reward)
	return statusResult(status), nil
}

func (s *Server) handleGet(_ context.Context, c *call) (any, *RPCError) {
	var p GateIDParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	return gateResult(p.GateID, s.node.GetGate(p.GateID)), nil
}

func (s *Server) handleCount(_ context.Context, c *call) (any, *RPCError) {
	if len(c.params) > 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "no parameters expected"}
	}
	counts := s.node.GetGateCount()
	return CountResult{TotalGates: counts.TotalGates, ActiveGates: counts.ActiveGates, TotalBurned: counts.TotalBurned}, nil
}

func (s *Server) handleFees(_ context.Context, c *call) (any, *RPCError) {
	if len(c.params) > 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "no parameters expected"}
	}
	fees := s.node.GetFees()
	return FeesResult{
		CreationFee:        fees.CreationFee,
		CurrentCreationFee: fees.CurrentCreationFee,
		MinSendAmount:      fees.MinSendAmount,
		ExpiryEpochs:       fees.ExpiryEpochs,
	}, nil
}

func (s *Server) handleEvents(_ context.Context, c *call) (any, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeJournalDisabled, Message: "event journal not configured"}
	}
	var p EventsParams
	if rpcErr := c.decode(&p, false); rpcErr != nil {
		return nil, rpcErr
	}
	records, err := s.events.Find(journal.Query{GateID: p.GateID, Type: p.Type, AfterSeq: p.AfterSeq, Limit: p.Limit})
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "journal query failed", Data: err.Error()}
	}
	out, err := eventResults(records)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "journal record corrupt", Data: err.Error()}
	}
	return out, nil
}

func (s *Server) handleEndEpoch(_ context.Context, _ *call) (any, *RPCError) {
	expired, err := s.node.AdvanceEpoch()
	if err != nil {
		return nil, nodeError(err)
	}
	if expired == nil {
		expired = []uint64{}
	}
	return EndEpochResult{Epoch: s.node.Epoch(), Expired: expired}, nil
}

func (s *Server) handleBalance(_ context.Context, c *call) (any, *RPCError) {
	var p IdentityParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	return BalanceResult{Identity: p.Identity, Balance: s.node.Balance(p.Identity)}, nil
}

func (s *Server) handleLedgerSend(_ context.Context, c *call) (any, *RPCError) {
	var p LedgerSendParams
	if rpcErr := c.decode(&p, true); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.Send(c.caller, p.To, p.Amount); err != nil {
		return nil, nodeError(err)
	}
	return BalanceResult{Identity: c.caller, Balance: s.node.Balance(c.caller)}, nil
}

func (s *Server) handleStatus(_ context.Context, c *call) (any, *RPCError) {
	root, err := s.node.StateRoot()
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "state root unavailable", Data: err.Error()}
	}
	registryRoot, err := s.node.RegistryRoot()
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "registry root unavailable", Data: err.Error()}
	}
	supply, burned := s.node.Supply()
	return NodeStatusResult{
		Epoch:        s.node.Epoch(),
		StateRoot:    hexRoot(root),
		RegistryRoot: hexRoot(registryRoot),
		Supply:       supply,
		Burned:       burned,
	}, nil
}
