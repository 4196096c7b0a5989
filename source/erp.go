package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"procurement-insight/decision/explain"
	"procurement-insight/decision/order"
	"procurement-insight/pkg/errors"
	"procurement-insight/pkg/platform"
)

const purchaseOrderDoctype = "Purchase Order"

var purchaseOrderFields = []string{"name", "supplier", "transaction_date", "schedule_date", "status", "grand_total"}

// ERPConfig holds ERPNext connection settings.
type ERPConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	// Limit is the page length for list calls
	Limit int
	// WithItems fetches each order document to include its line items
	WithItems bool
	Retries   int
	Timeout   time.Duration
}

// ERPConfigFromEnv reads ERP_URL, ERP_API_KEY and ERP_API_SECRET.
func ERPConfigFromEnv() ERPConfig {
	return ERPConfig{
		BaseURL:   platform.GetEnv("ERP_URL", ""),
		APIKey:    platform.GetEnv("ERP_API_KEY", ""),
		APISecret: platform.GetEnv("ERP_API_SECRET", ""),
		Limit:     platform.GetEnvInt("ERP_PAGE_LIMIT", 100),
		WithItems: platform.GetEnvBool("ERP_WITH_ITEMS", true),
		Retries:   platform.GetEnvInt("ERP_RETRIES", 2),
		Timeout:   20 * time.Second,
	}
}

// ERPSource reads purchase orders from the ERPNext REST API.
type ERPSource struct {
	cfg    ERPConfig
	client *platform.HTTPClient
	header http.Header
}

func NewERPSource(cfg ERPConfig) (*ERPSource, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.NewInvalidConfigError("ERP connection", "ERP_URL, ERP_API_KEY and ERP_API_SECRET are required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ERPSource{
		cfg:    cfg,
		client: platform.NewHTTPClient(cfg.Retries, cfg.Timeout),
		header: http.Header{"Authorization": []string{fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.APISecret)}},
	}, nil
}

// WithHTTPClient replaces the transport client.
func (s *ERPSource) WithHTTPClient(c *platform.HTTPClient) *ERPSource {
	s.client = c
	return s
}

func (s *ERPSource) resourceURL(doctype string, parts ...string) string {
	segs := append([]string{s.cfg.BaseURL, "api", "resource", url.PathEscape(doctype)}, parts...)
	return strings.Join(segs, "/")
}

// ListOrders reads every page of the purchase order list, then fills in line
// items when WithItems is set.
func (s *ERPSource) ListOrders(ctx context.Context) ([]order.Order, error) {
	orders, err := listAll[order.Order](ctx, s, purchaseOrderDoctype, purchaseOrderFields)
	if err != nil {
		return nil, errors.NewSourceError("erp:purchase-orders", err)
	}
	if !s.cfg.WithItems {
		return orders, nil
	}

	for i := range orders {
		full, err := s.GetOrder(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = full.Items
		if orders[i].ScheduleDate == "" {
			orders[i].ScheduleDate = full.ScheduleDate
		}
	}
	return orders, nil
}

// GetOrder fetches a single purchase order document including its items.
func (s *ERPSource) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var doc struct {
		Data order.Order `json:"data"`
	}
	if err := s.client.GetJSON(ctx, s.resourceURL(purchaseOrderDoctype, url.PathEscape(id)), s.header, &doc); err != nil {
		return order.Order{}, errors.NewSourceError("erp:purchase-order "+id, err)
	}
	return doc.Data, nil
}

// entityDoctypes maps list intents to the ERPNext doctype and the fields requested
var entityDoctypes = map[explain.Intent]struct {
	doctype string
	fields  []string
}{
	explain.ListSuppliers:     {"Supplier", []string{"name"}},
	explain.ListCustomers:     {"Customer", []string{"name"}},
	explain.ListItems:         {"Item", []string{"name"}},
	explain.ListSalesOrders:   {"Sales Order", []string{"name", "customer"}},
	explain.ListSalesInvoices: {"Sales Invoice", []string{"name", "customer"}},
	explain.ListVendorBills:   {"Purchase Invoice", []string{"name", "supplier"}},
}

// ListEntities fetches the ERP list backing a list intent. Intents without a
// doctype return an UNSUPPORTED_INTENT error.
func (s *ERPSource) ListEntities(ctx context.Context, intent explain.Intent) (*explain.EntitySet, error) {
	dt, ok := entityDoctypes[intent]
	if !ok {
		return nil, errors.NewUnsupportedIntentError(intent.String())
	}
	records, err := listAll[explain.Entity](ctx, s, dt.doctype, dt.fields)
	if err != nil {
		return nil, errors.NewSourceError("erp:"+dt.doctype, err)
	}
	return &explain.EntitySet{Records: records}, nil
}

// listAll pages a doctype list with limit_start until a page shorter than Limit.
func listAll[T any](ctx context.Context, s *ERPSource, doctype string, fields []string) ([]T, error) {
	encoded, _ := json.Marshal(fields)
	out := []T{}
	for {
		q := url.Values{}
		q.Set("fields", string(encoded))
		q.Set("limit_start", strconv.Itoa(len(out)))
		q.Set("limit_page_length", strconv.Itoa(s.cfg.Limit))

		var page struct {
			Data []T `json:"data"`
		}
		if err := s.client.GetJSON(ctx, s.resourceURL(doctype)+"?"+q.Encode(), s.header, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if len(page.Data) < s.cfg.Limit {
			return out, nil
		}
	}
}
