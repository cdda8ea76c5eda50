package adapters_test

import (
	"errors"
	"testing"

	"github.com/smallbiznis/staybook/internal/payment/adapters"
	"github.com/smallbiznis/staybook/internal/payment/adapters/generic"
	"github.com/smallbiznis/staybook/internal/payment/adapters/midtrans"
	"github.com/smallbiznis/staybook/internal/payment/adapters/xendit"
	"github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(generic.NewParser(), midtrans.NewParser(), xendit.NewParser(), nil)
}

func TestRegistryProviders(t *testing.T) {
	r := newRegistry()
	assert.Equal(t, []string{"generic", "midtrans", "xendit"}, r.Providers())
	assert.True(t, r.ProviderExists(" MidTrans "))
	assert.False(t, r.ProviderExists("stripe"))

	_, err := r.Parse("stripe", []byte(`{}`))
	assert.True(t, errors.Is(err, domain.ErrProviderNotFound))
}

func TestGenericParse(t *testing.T) {
	n, err := newRegistry().Parse("generic", []byte(`{"providerRef":"PAY-1","status":"paid","amount":450000,"currency":"idr","eventId":"evt-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "generic", n.Provider)
	assert.Equal(t, "PAY-1", n.ProviderRef)
	assert.Equal(t, "paid", n.ReportedStatus)
	assert.Equal(t, "IDR", n.Currency)
	assert.Equal(t, "evt-1", n.EventID)
	require.NotNil(t, n.Amount)
	assert.EqualValues(t, 450000, *n.Amount)

	_, err = newRegistry().Parse("generic", []byte(`{"status":"paid"}`))
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
	_, err = newRegistry().Parse("generic", []byte(`not json`))
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
}

func TestMidtransParse(t *testing.T) {
	r := newRegistry()

	n, err := r.Parse("midtrans", []byte(`{
		"order_id": "PAY-2",
		"transaction_id": "tx-9",
		"transaction_status": "settlement",
		"gross_amount": "150000.00",
		"currency": "IDR",
		"payment_type": "bank_transfer"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "PAY-2", n.ProviderRef)
	assert.Equal(t, "settlement", n.ReportedStatus)
	assert.Equal(t, "bank_transfer", n.PaymentMethod)
	require.NotNil(t, n.Amount)
	assert.EqualValues(t, 150000, *n.Amount)

	n, err = r.Parse("midtrans", []byte(`{"order_id":"PAY-3","transaction_status":"capture","fraud_status":"challenge"}`))
	require.NoError(t, err)
	_, terminal := domain.MapProviderStatus(n.ReportedStatus)
	assert.False(t, terminal)

	_, err = r.Parse("midtrans", []byte(`{"order_id":"PAY-4","transaction_status":"settlement","gross_amount":"10.50"}`))
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
}

func TestMidtransRejectsUnrepresentableAmounts(t *testing.T) {
	r := newRegistry()
	for _, amount := range []string{"Inf", "+Inf", "NaN", "1e5", "-100.00", "9223372036854775808", "99999999999999999999.00"} {
		_, err := r.Parse("midtrans", []byte(`{"order_id":"PAY-6","transaction_status":"settlement","gross_amount":"`+amount+`"}`))
		assert.True(t, errors.Is(err, domain.ErrInvalidPayload), amount)
	}

	n, err := r.Parse("midtrans", []byte(`{"order_id":"PAY-7","transaction_status":"settlement","gross_amount":"9223372036854775807.00"}`))
	require.NoError(t, err)
	require.NotNil(t, n.Amount)
	assert.EqualValues(t, int64(9223372036854775807), *n.Amount)
}

func TestXenditParse(t *testing.T) {
	n, err := newRegistry().Parse("xendit", []byte(`{"id":"inv-1","external_id":"PAY-5","status":"EXPIRED","amount":200000,"currency":"IDR"}`))
	require.NoError(t, err)

	assert.Equal(t, "PAY-5", n.ProviderRef)
	assert.Equal(t, "inv-1", n.EventID)
	status, ok := domain.MapProviderStatus(n.ReportedStatus)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusFailed, status)
	require.NotNil(t, n.Amount)
	assert.EqualValues(t, 200000, *n.Amount)
}

func TestMapProviderStatus(t *testing.T) {
	paid := []string{"paid", "SETTLED", "settlement", "success", "Succeeded"}
	failed := []string{"failed", "expired", "cancelled", "canceled", "deny", "denied"}
	ignored := []string{"pending", "", "authorize", "challenge"}

	for _, s := range paid {
		got, ok := domain.MapProviderStatus(s)
		assert.True(t, ok, s)
		assert.Equal(t, domain.StatusPaid, got, s)
	}
	for _, s := range failed {
		got, ok := domain.MapProviderStatus(s)
		assert.True(t, ok, s)
		assert.Equal(t, domain.StatusFailed, got, s)
	}
	for _, s := range ignored {
		_, ok := domain.MapProviderStatus(s)
		assert.False(t, ok, s)
	}
}
