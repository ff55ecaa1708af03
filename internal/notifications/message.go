package notifications

import (
	"fmt"
	"strings"

	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/stock"
)

const (
	titleOutOfStock = "Produtos sem stock"
	titleLowStock   = "Stock baixo"
	pushSound       = "default"
	namesInBody     = 2
)

// Outgoing is a push message plus the items it reports on.
type Outgoing struct {
	Message push.Message
	ItemIDs []string
}

// BuildMessages builds at most two messages: out-of-stock first, then
// low-stock, each only when enabled and non-empty.
func BuildMessages(u User, res stock.Result, s Settings) []Outgoing {
	var out []Outgoing
	if s.OutOfStockEnabled && len(res.Out) > 0 {
		out = append(out, buildOne(u, res.Out, TypeOutOfStock))
	}
	if s.LowStockEnabled && len(res.Low) > 0 {
		out = append(out, buildOne(u, res.Low, TypeLowStock))
	}
	return out
}

func buildOne(u User, items []stock.Item, kind string) Outgoing {
	title, priority := titleLowStock, push.PriorityNormal
	if kind == TypeOutOfStock {
		title, priority = titleOutOfStock, push.PriorityHigh
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	return Outgoing{
		Message: push.Message{
			To:       u.PushToken,
			Title:    title,
			Body:     FormatBody(kind, items),
			Data:     push.Data{Type: kind, UserID: u.ID, Count: len(items)},
			Sound:    pushSound,
			Priority: priority,
		},
		ItemIDs: ids,
	}
}

// FormatBody renders the alert text. A single item is named; several are
// counted and the first two named.
func FormatBody(kind string, items []stock.Item) string {
	single, plural := "está com stock baixo", "produtos com stock baixo"
	if kind == TypeOutOfStock {
		single, plural = "está sem stock", "produtos sem stock"
	}

	if len(items) == 1 {
		return fmt.Sprintf("%s %s", items[0].Name, single)
	}

	n := min(len(items), namesInBody)
	names := make([]string, 0, n)
	for _, it := range items[:n] {
		names = append(names, it.Name)
	}
	body := fmt.Sprintf("%d %s: %s", len(items), plural, strings.Join(names, ", "))
	if len(items) > namesInBody {
		body += "..."
	}
	return body
}
