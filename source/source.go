// Package source loads purchase orders for the decision engines from files,
// S3 exports, the ERPNext REST API or the order history stores.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"procurement-insight/decision/order"
)

// OrderSource yields the full order batch handed to the engines.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]order.Order, error)
}

// envelope is the ERPNext list response shape
type envelope struct {
	Data []order.Order `json:"data"`
}

// Decode reads either a JSON array of orders or an ERPNext {"data": [...]} envelope.
func Decode(r io.Reader) ([]order.Order, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []order.Order{}, nil
	}

	if raw[0] == '[' {
		var orders []order.Order
		if err := json.Unmarshal(raw, &orders); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
		return orders, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode orders envelope: %w", err)
	}
	if env.Data == nil {
		env.Data = []order.Order{}
	}
	return env.Data, nil
}

// Static serves a fixed batch; useful for tests and embedding.
type Static []order.Order

func (s Static) ListOrders(context.Context) ([]order.Order, error) {
	out := make([]order.Order, len(s))
	copy(out, s)
	return out, nil
}
