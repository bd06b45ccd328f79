package core

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Equipment status values.
const (
	StatusAvailable = "available"
	StatusBorrowed  = "borrowed"
)

// Actions understood by the remote endpoint.
const (
	ActionGetInventory = "get_inventory"
	ActionBorrow       = "borrow"
	ActionReturn       = "return"
)

// EquipmentRecord is a single row of the inventory spreadsheet.
type EquipmentRecord struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	Condition    string `json:"condition"`
	Borrower     string `json:"borrower"`
	LastUpdate   string `json:"lastUpdate"`
	TotalBorrows int    `json:"totalBorrows"`
}

// Inventory maps an equipment category (camera, laptop, ...) to its records.
type Inventory map[string][]EquipmentRecord

// Digest returns a stable hash of the inventory contents.
// encoding/json sorts map keys, so equal inventories hash equally.
func (inv Inventory) Digest() uint64 {
	b, err := json.Marshal(inv)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// Stats counts the inventory by status.
func (inv Inventory) Stats() InventoryStats {
	var s InventoryStats
	for _, items := range inv {
		for _, item := range items {
			s.Total++
			switch item.Status {
			case StatusAvailable:
				s.Available++
			case StatusBorrowed:
				s.Borrowed++
			}
		}
	}
	return s
}

// Borrowed lists every record currently out on loan.
func (inv Inventory) Borrowed() []BorrowedItem {
	items := make([]BorrowedItem, 0)
	for _, category := range SortedCategories(inv) {
		for _, item := range inv[category] {
			if item.Status != StatusBorrowed {
				continue
			}
			borrower := item.Borrower
			if borrower == "" {
				borrower = "Unknown"
			}
			items = append(items, BorrowedItem{Name: item.Name, Type: category, Borrower: borrower})
		}
	}
	return items
}

// InventoryStats holds aggregated counts for the statistics view.
type InventoryStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Borrowed  int `json:"borrowed"`
}

// BorrowedItem is one entry of the borrowed-items view.
type BorrowedItem struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Borrower string `json:"borrower"`
}

// Payload is a request body sent to the endpoint: {action, ...fields}.
type Payload map[string]any

// Action returns the action tag of the payload.
func (p Payload) Action() string {
	a, _ := p["action"].(string)
	return a
}

// NewPayload builds a payload from an action tag and a struct of fields.
func NewPayload(action string, fields any) (Payload, error) {
	p := Payload{}
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal %s fields: %w", action, err)
		}
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s fields: %w", action, err)
		}
	}
	p["action"] = action
	return p, nil
}

// Decode copies the payload fields into dst.
func (p Payload) Decode(dst any) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return json.Unmarshal(b, dst)
}

// Envelope is the endpoint response shape: {success, result?, error?}.
type Envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DecodeResult unmarshals the envelope result into dst.
// A missing result leaves dst untouched.
func (e *Envelope) DecodeResult(dst any) error {
	if e == nil || len(e.Result) == 0 || string(e.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Result, dst); err != nil {
		return NewTransportError(0, "failed to decode result: "+err.Error(), err)
	}
	return nil
}

// BorrowRequest is the borrow form submitted to the endpoint.
type BorrowRequest struct {
	BorrowerName       string `json:"borrowerName"`
	EventName          string `json:"eventName,omitempty"`
	EquipmentType      string `json:"equipmentType"`
	EquipmentName      string `json:"equipmentName"`
	PickupDate         string `json:"pickupDate,omitempty"`
	PickupTime         string `json:"pickupTime,omitempty"`
	ExpectedReturnDate string `json:"expectedReturnDate,omitempty"`
	BorrowCondition    string `json:"borrowCondition"`
	BorrowNotes        string `json:"borrowNotes,omitempty"`
}

// ReturnRequest is the return form submitted to the endpoint.
type ReturnRequest struct {
	ReturnBorrowerName  string `json:"returnBorrowerName"`
	ReturnEquipmentName string `json:"returnEquipmentName"`
	ReturnDate          string `json:"returnDate,omitempty"`
	ReturnTime          string `json:"returnTime,omitempty"`
	ReturnCondition     string `json:"returnCondition"`
	ReturnNotes         string `json:"returnNotes,omitempty"`
}
