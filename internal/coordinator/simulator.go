package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/cache"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

const (
	// SimulationTTL is the lifetime of the simulated dataset and its audit log.
	SimulationTTL = 24 * time.Hour

	maxTransactions = 100
	simulationUser  = "Demo User"
)

// Transaction types recorded by the simulator.
const (
	TransactionBorrow = "BORROW"
	TransactionReturn = "RETURN"
)

// Transaction is one entry of the simulated audit log.
type Transaction struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Timestamp string       `json:"timestamp"`
	Data      core.Payload `json:"data"`
	User      string       `json:"user"`
}

// Simulator answers requests from a dataset kept in the cache store, so
// the whole client can run without an endpoint.
type Simulator struct {
	store  *cache.Store
	now    func() time.Time
	logger *slog.Logger

	// serializes read-modify-write of the dataset and audit log
	mu sync.Mutex
}

// NewSimulator creates a Simulator backed by store.
func NewSimulator(store *cache.Store, now func() time.Time, logger *slog.Logger) *Simulator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{store: store, now: now, logger: logger}
}

// Handle dispatches payload by action.
func (s *Simulator) Handle(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	switch action := payload.Action(); action {
	case core.ActionGetInventory:
		s.mu.Lock()
		inv := s.inventory(ctx)
		s.mu.Unlock()
		return envelope(inv, "Demo data loaded successfully")
	case core.ActionBorrow:
		return s.borrow(ctx, payload)
	case core.ActionReturn:
		return s.giveBack(ctx, payload)
	default:
		return nil, core.NewApplicationError(fmt.Sprintf("action '%s' is not supported in simulation mode", action))
	}
}

// Inventory returns the current simulated dataset, seeding it if absent.
func (s *Simulator) Inventory(ctx context.Context) core.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory(ctx)
}

// Transactions returns the simulated audit log, oldest first.
func (s *Simulator) Transactions(ctx context.Context) []Transaction {
	txs, _ := cache.Lookup[[]Transaction](ctx, s.store, core.CacheKeyDemoTransactions)
	return txs
}

func (s *Simulator) inventory(ctx context.Context) core.Inventory {
	if inv, ok := cache.Lookup[core.Inventory](ctx, s.store, core.CacheKeyDemoInventory); ok && inv != nil {
		return inv
	}
	inv := SeedInventory(s.now())
	s.store.Set(ctx, core.CacheKeyDemoInventory, inv, SimulationTTL)
	return inv
}

func (s *Simulator) borrow(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	var req core.BorrowRequest
	if err := payload.Decode(&req); err != nil {
		return nil, core.NewApplicationError("invalid borrow request: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv := s.inventory(ctx)
	items, ok := inv[req.EquipmentType]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("equipment type '%s' not found", req.EquipmentType))
	}
	idx := indexOf(items, req.EquipmentName)
	if idx < 0 {
		return nil, core.NewNotFoundError(fmt.Sprintf("equipment '%s' not found", req.EquipmentName))
	}
	item := &items[idx]
	if item.Status == core.StatusBorrowed {
		return nil, core.NewConflictError(fmt.Sprintf("equipment '%s' is currently borrowed by %s", req.EquipmentName, item.Borrower))
	}

	item.Status = core.StatusBorrowed
	item.Borrower = req.BorrowerName
	item.Condition = req.BorrowCondition
	item.LastUpdate = formatTimestamp(s.now())
	item.TotalBorrows++

	s.store.Set(ctx, core.CacheKeyDemoInventory, inv, SimulationTTL)
	s.logTransaction(ctx, TransactionBorrow, payload)

	return envelope(map[string]string{
		"action":    core.ActionBorrow,
		"equipment": req.EquipmentName,
		"borrower":  req.BorrowerName,
	}, "")
}

func (s *Simulator) giveBack(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	var req core.ReturnRequest
	if err := payload.Decode(&req); err != nil {
		return nil, core.NewApplicationError("invalid return request: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv := s.inventory(ctx)
	var item *core.EquipmentRecord
	for _, category := range core.SortedCategories(inv) {
		if idx := indexOf(inv[category], req.ReturnEquipmentName); idx >= 0 {
			item = &inv[category][idx]
			break
		}
	}
	if item == nil {
		return nil, core.NewNotFoundError(fmt.Sprintf("equipment '%s' not found", req.ReturnEquipmentName))
	}
	if item.Status != core.StatusBorrowed {
		return nil, core.NewStateError(fmt.Sprintf("equipment '%s' is not currently borrowed", req.ReturnEquipmentName))
	}

	item.Status = core.StatusAvailable
	item.Borrower = ""
	item.Condition = req.ReturnCondition
	item.LastUpdate = formatTimestamp(s.now())

	s.store.Set(ctx, core.CacheKeyDemoInventory, inv, SimulationTTL)
	s.logTransaction(ctx, TransactionReturn, payload)

	return envelope(map[string]string{
		"action":     core.ActionReturn,
		"equipment":  req.ReturnEquipmentName,
		"returnedBy": req.ReturnBorrowerName,
	}, "")
}

func (s *Simulator) logTransaction(ctx context.Context, kind string, payload core.Payload) {
	txs, _ := cache.Lookup[[]Transaction](ctx, s.store, core.CacheKeyDemoTransactions)
	txs = append(txs, Transaction{
		ID:        uuid.NewString(),
		Type:      kind,
		Timestamp: formatTimestamp(s.now()),
		Data:      payload,
		User:      simulationUser,
	})
	if len(txs) > maxTransactions {
		txs = txs[len(txs)-maxTransactions:]
	}
	s.store.Set(ctx, core.CacheKeyDemoTransactions, txs, SimulationTTL)
	s.logger.Debug("simulated transaction recorded", "type", kind, "total", len(txs))
}

func indexOf(items []core.EquipmentRecord, name string) int {
	for i := range items {
		if items[i].Name == name {
			return i
		}
	}
	return -1
}

func envelope(result any, message string) (*core.Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal simulated result: %w", err)
	}
	return &core.Envelope{Success: true, Result: raw, Message: message}, nil
}
