package explain

import (
	"strings"

	"procurement-insight/pkg/errors"
)

// Intent selects an explanation template
type Intent int

const (
	TotalSpend Intent = iota
	ListPurchaseOrders
	ListSuppliers
	ListCustomers
	ListItems
	ListSalesOrders
	ListSalesInvoices
	ListVendorBills
	DetectPriceAnomalies
	DetectDelayedOrders
	ApprovePurchaseOrder

	intentCount
)

var intentNames = [intentCount]string{
	TotalSpend:           "total_spend",
	ListPurchaseOrders:   "list_purchase_orders",
	ListSuppliers:        "list_suppliers",
	ListCustomers:        "list_customers",
	ListItems:            "list_items",
	ListSalesOrders:      "list_sales_orders",
	ListSalesInvoices:    "list_sales_invoices",
	ListVendorBills:      "list_vendor_bills",
	DetectPriceAnomalies: "detect_price_anomalies",
	DetectDelayedOrders:  "detect_delayed_orders",
	ApprovePurchaseOrder: "approve_purchase_order",
}

func (i Intent) String() string {
	if i < 0 || i >= intentCount {
		return "unknown"
	}
	return intentNames[i]
}

// MarshalText renders the intent by name
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Intents lists every supported intent
func Intents() []Intent {
	out := make([]Intent, 0, intentCount)
	for i := Intent(0); i < intentCount; i++ {
		out = append(out, i)
	}
	return out
}

// ParseIntent resolves an intent name, case-insensitively.
func ParseIntent(name string) (Intent, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range intentNames {
		if n == name {
			return Intent(i), true
		}
	}
	return 0, false
}

// Lookup is ParseIntent returning an UNSUPPORTED_INTENT error for unknown names.
func Lookup(name string) (Intent, error) {
	if i, ok := ParseIntent(name); ok {
		return i, nil
	}
	return 0, errors.NewUnsupportedIntentError(name)
}
