package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/stock"
)

func TestFormatBody(t *testing.T) {
	a, b, c := qty("A", 0), qty("B", 0), qty("C", 0)

	assert.Equal(t, "A está sem stock", FormatBody(TypeOutOfStock, []stock.Item{a}))
	assert.Equal(t, "3 produtos sem stock: A, B...", FormatBody(TypeOutOfStock, []stock.Item{a, b, c}))
	assert.Equal(t, "2 produtos sem stock: A, B", FormatBody(TypeOutOfStock, []stock.Item{a, b}))
	assert.Equal(t, "A está com stock baixo", FormatBody(TypeLowStock, []stock.Item{a}))
	assert.Equal(t, "3 produtos com stock baixo: A, B...", FormatBody(TypeLowStock, []stock.Item{a, b, c}))
}

func TestBuildMessagesOrderAndPriority(t *testing.T) {
	u := User{ID: "u1", PushToken: "tok"}
	res := stock.Scan([]stock.Item{qty("Leite", 2), qty("Pão", 0), qty("Ovos", 1)}, 5)

	msgs := BuildMessages(u, res, DefaultSettings())
	require.Len(t, msgs, 2)

	out, low := msgs[0], msgs[1]
	assert.Equal(t, TypeOutOfStock, out.Message.Data.Type)
	assert.Equal(t, push.PriorityHigh, out.Message.Priority)
	assert.Equal(t, "Pão está sem stock", out.Message.Body)
	assert.Equal(t, []string{"id-Pão"}, out.ItemIDs)

	assert.Equal(t, TypeLowStock, low.Message.Data.Type)
	assert.Equal(t, push.PriorityNormal, low.Message.Priority)
	assert.Equal(t, "2 produtos com stock baixo: Leite, Ovos", low.Message.Body)
	assert.Equal(t, push.Data{Type: TypeLowStock, UserID: "u1", Count: 2}, low.Message.Data)
	assert.Equal(t, "tok", low.Message.To)
	assert.Equal(t, "default", low.Message.Sound)
}

func TestBuildMessagesRespectsToggles(t *testing.T) {
	u := User{ID: "u1", PushToken: "tok"}
	res := stock.Scan([]stock.Item{qty("Leite", 2), qty("Pão", 0)}, 5)

	s := DefaultSettings()
	s.OutOfStockEnabled = false
	msgs := BuildMessages(u, res, s)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeLowStock, msgs[0].Message.Data.Type)

	s.LowStockEnabled = false
	assert.Empty(t, BuildMessages(u, res, s))
}
