package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erp/salesync/internal/domain/shared"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("type handlers come before wildcard handlers", func(t *testing.T) {
		r := NewHandlerRegistry()
		all := newTestHandler()
		posted := newTestHandler()
		r.Register(all)
		r.Register(posted, "InvoicePosted")

		assert.Equal(t, []shared.EventHandler{posted, all}, r.GetHandlers("InvoicePosted"))
		assert.Equal(t, []shared.EventHandler{all}, r.GetHandlers("PaymentSettled"))
	})

	t.Run("registering twice is a no-op", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler()
		r.Register(h, "InvoicePosted")
		r.Register(h, "InvoicePosted", "PaymentSettled")

		assert.Len(t, r.GetHandlers("InvoicePosted"), 1)
		assert.Len(t, r.GetHandlers("PaymentSettled"), 1)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("handler both typed and wildcard is returned once", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler()
		r.Register(h, "InvoicePosted")
		r.Register(h)

		assert.Len(t, r.GetHandlers("InvoicePosted"), 1)
	})

	t.Run("unregister removes every registration", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler()
		other := newTestHandler()
		r.Register(h, "InvoicePosted", "PaymentSettled")
		r.Register(h)
		r.Register(other, "InvoicePosted")

		r.Unregister(h)

		assert.Equal(t, []shared.EventHandler{other}, r.GetHandlers("InvoicePosted"))
		assert.Empty(t, r.GetHandlers("PaymentSettled"))
		assert.Equal(t, 1, r.Len())
	})
}
