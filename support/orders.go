// Package support is a customer-support agent that answers from a knowledge base, looks up
// orders and hands conversations to a human when it cannot help.
package support

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KamdynS/bedrock-agents/memory"
)

// ErrOrderNotFound is returned for unknown order ids.
var ErrOrderNotFound = errors.New("order not found")

var orderIDRe = regexp.MustCompile(`^ORD-\d{4,10}$`)

type Item struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is what the agent may tell a customer about a purchase.
type Order struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Items     []Item    `json:"items"`
	Total     float64   `json:"total"`
	PlacedAt  time.Time `json:"placed_at"`
	Carrier   string    `json:"carrier,omitempty"`
	Tracking  string    `json:"tracking,omitempty"`
	Delivered time.Time `json:"delivered"`
}

// OrderBook finds orders by id.
type OrderBook interface {
	Lookup(ctx context.Context, id string) (*Order, error)
}

// StoreOrderBook keeps orders as JSON under "order:<id>" in a memory.Store.
type StoreOrderBook struct {
	Store memory.Store
}

func (b StoreOrderBook) Lookup(ctx context.Context, id string) (*Order, error) {
	id = NormalizeOrderID(id)
	if !orderIDRe.MatchString(id) {
		return nil, fmt.Errorf("invalid order id %q, expected ORD-1234", id)
	}
	o, err := memory.RetrieveJSON[Order](ctx, b.Store, "order:"+id)
	if errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Put stores o, replacing any order with the same id.
func (b StoreOrderBook) Put(ctx context.Context, o Order) error {
	o.ID = NormalizeOrderID(o.ID)
	if !orderIDRe.MatchString(o.ID) {
		return fmt.Errorf("invalid order id %q", o.ID)
	}
	return memory.StoreJSON(ctx, b.Store, "order:"+o.ID, o)
}

// NormalizeOrderID accepts "ord-1001", "1001" and "ORD-1001".
func NormalizeOrderID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id != "" && !strings.HasPrefix(id, "ORD-") && strings.Trim(id, "0123456789") == "" {
		id = "ORD-" + id
	}
	return id
}

// SampleOrders seeds demo deployments.
func SampleOrders(now time.Time) []Order {
	return []Order{
		{
			ID: "ORD-1001", Email: "jane@example.com", Status: "delivered",
			Items:    []Item{{SKU: "HP-200", Name: "Wireless headphones", Quantity: 1, Price: 129.99}},
			Total:    129.99,
			PlacedAt: now.AddDate(0, 0, -12), Carrier: "UPS", Tracking: "1Z999AA10123456784",
			Delivered: now.AddDate(0, 0, -7),
		},
		{
			ID: "ORD-1002", Email: "sam@example.com", Status: "shipped",
			Items: []Item{
				{SKU: "KB-87", Name: "Mechanical keyboard", Quantity: 1, Price: 89.00},
				{SKU: "MS-12", Name: "Mouse", Quantity: 2, Price: 24.50},
			},
			Total:    138.00,
			PlacedAt: now.AddDate(0, 0, -3), Carrier: "USPS", Tracking: "9400111899223197428490",
		},
		{
			ID: "ORD-1003", Email: "lee@example.com", Status: "processing",
			Items:    []Item{{SKU: "MN-27", Name: "27in monitor", Quantity: 1, Price: 319.00}},
			Total:    319.00,
			PlacedAt: now.AddDate(0, 0, -1),
		},
	}
}

// FormatOrder renders o for the model. Email is left out.
func FormatOrder(o *Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s: %s\nPlaced: %s\n", o.ID, o.Status, o.PlacedAt.Format("2006-01-02"))
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %d x %s (%s) $%.2f\n", it.Quantity, it.Name, it.SKU, it.Price)
	}
	fmt.Fprintf(&b, "Total: $%.2f", o.Total)
	if o.Carrier != "" {
		fmt.Fprintf(&b, "\nShipping: %s %s", o.Carrier, o.Tracking)
	}
	if !o.Delivered.IsZero() {
		fmt.Fprintf(&b, "\nDelivered: %s", o.Delivered.Format("2006-01-02"))
	}
	return b.String()
}
