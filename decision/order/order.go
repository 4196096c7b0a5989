// Package order defines the purchase-order record consumed by every decision engine.
//
// Records arrive already decoded from an ERP source. Decoding is lenient: numeric
// fields never fail to decode and degrade to zero when absent or malformed.
package order

import (
	"bytes"
	"encoding/json"
	"strings"

	"procurement-insight/decision/metrics"
)

// Well-known statuses
const (
	StatusDraft            = "Draft"
	StatusToReceive        = "To Receive"
	StatusToBill           = "To Bill"
	StatusToReceiveAndBill = "To Receive and Bill"
	StatusCompleted        = "Completed"
	StatusClosed           = "Closed"
	StatusCancelled        = "Cancelled"
)

// UnknownKey groups orders whose supplier or status is missing
const UnknownKey = "Unknown"

// terminalStatuses is an exact, case-sensitive contract.
var terminalStatuses = map[string]struct{}{
	StatusCompleted: {},
	StatusClosed:    {},
	StatusCancelled: {},
}

// IsTerminal reports whether a status ends the order lifecycle.
// Surrounding whitespace is ignored; case is not normalized.
func IsTerminal(status string) bool {
	_, ok := terminalStatuses[strings.TrimSpace(status)]
	return ok
}

// Amount is a monetary or quantity value that decodes from any JSON value.
type Amount float64

// UnmarshalJSON coerces numbers, numeric strings and null; anything else is zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		*a = 0
		return nil
	}
	*a = Amount(metrics.CoerceAmount(raw))
	return nil
}

// Float64 returns the amount as a float64
func (a Amount) Float64() float64 {
	return float64(a)
}

// Item is one line of a purchase order
type Item struct {
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name,omitempty"`
	Quantity Amount `json:"quantity"`
	Rate     Amount `json:"rate"`
}

// Key returns the item code, falling back to the item name, then UnknownKey.
func (i Item) Key() string {
	if code := strings.TrimSpace(i.ItemCode); code != "" {
		return code
	}
	if name := strings.TrimSpace(i.ItemName); name != "" {
		return name
	}
	return UnknownKey
}

// UnmarshalJSON accepts the ERPNext "qty" alias for quantity.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		Qty *Amount `json:"qty"`
	}{plain: (*plain)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if i.Quantity == 0 && aux.Qty != nil {
		i.Quantity = *aux.Qty
	}
	return nil
}

// Order is a single purchase order record
type Order struct {
	ID           string `json:"id"`
	Supplier     string `json:"supplier,omitempty"`
	GrandTotal   Amount `json:"grand_total"`
	Status       string `json:"status,omitempty"`
	Date         string `json:"date,omitempty"`
	ScheduleDate string `json:"schedule_date,omitempty"`
	Items        []Item `json:"items,omitempty"`
}

// UnmarshalJSON accepts ERPNext field aliases (name, transaction_date, delivery_date).
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	aux := struct {
		*plain
		Name            string `json:"name"`
		TransactionDate string `json:"transaction_date"`
		DeliveryDate    string `json:"delivery_date"`
	}{plain: (*plain)(o)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.Name
	}
	if o.Date == "" {
		o.Date = aux.TransactionDate
	}
	if o.ScheduleDate == "" {
		o.ScheduleDate = aux.DeliveryDate
	}
	return nil
}

// SupplierKey returns the grouping key for the supplier, UnknownKey when blank.
func (o Order) SupplierKey() string {
	if strings.TrimSpace(o.Supplier) == "" {
		return UnknownKey
	}
	return o.Supplier
}

// StatusKey returns the grouping key for the status, UnknownKey when blank.
func (o Order) StatusKey() string {
	if strings.TrimSpace(o.Status) == "" {
		return UnknownKey
	}
	return o.Status
}

// IsPending reports whether the order is not yet in a terminal status.
func (o Order) IsPending() bool {
	return !IsTerminal(o.Status)
}

// Find returns the first order with the given ID.
func Find(orders []Order, id string) (Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}
