package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/models"
)

func validForm() ContactForm {
	return ContactForm{
		Name:  "Asha Verma",
		Email: "asha@example.com",
		Phone: "9876543210",
		Address: models.ShippingAddress{
			FullName:     "Asha Verma",
			Phone:        "9876543210",
			AddressLine1: "14 MG Road",
			City:         "Bengaluru",
			State:        "Karnataka",
			Pincode:      "560001",
			Country:      "India",
		},
	}
}

func someItems() []models.CartItem {
	return []models.CartItem{{ProductID: "p1", Name: "Kurta", UnitPrice: 1299, Quantity: 1}}
}

func TestContactFormValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ContactForm)
		field  string
	}{
		{"bad email", func(f *ContactForm) { f.Email = "not-an-email" }, "email"},
		{"phone too short", func(f *ContactForm) { f.Phone = "98765" }, "phone"},
		{"phone wrong prefix", func(f *ContactForm) { f.Phone = "5876543210" }, "phone"},
		{"bad pincode", func(f *ContactForm) { f.Address.Pincode = "5600" }, "pincode"},
		{"missing city", func(f *ContactForm) { f.Address.City = "" }, "city"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(&form)
			err := form.Validate()
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tc.field, fieldErr.Field)
		})
	}

	assert.NoError(t, validForm().Validate())
}

func TestGuestCheckoutNeverRequiresOTP(t *testing.T) {
	// Email and phone both present, account creation not selected: the
	// verification gate must not be consulted at all.
	form := validForm()
	form.CreateAccount = false

	next, err := Reduce(Information{}, SubmitInformation{Form: form, ChannelVerified: false}, Rules{})
	require.NoError(t, err)
	assert.Equal(t, StepShipping, next.Step())
}

func TestCreateAccountRequiresVerifiedChannel(t *testing.T) {
	form := validForm()
	form.CreateAccount = true
	form.OTPChannel = models.OTPChannelEmail

	next, err := Reduce(Information{}, SubmitInformation{Form: form, ChannelVerified: false}, Rules{})
	assert.ErrorIs(t, err, ErrVerificationRequired)
	assert.Equal(t, StepInformation, next.Step())

	next, err = Reduce(Information{}, SubmitInformation{Form: form, ChannelVerified: true}, Rules{})
	require.NoError(t, err)
	assert.Equal(t, StepShipping, next.Step())
}

func TestValidationFailureKeepsEnteredData(t *testing.T) {
	form := validForm()
	form.Email = "broken"

	next, err := Reduce(Information{}, SubmitInformation{Form: form}, Rules{})
	require.Error(t, err)

	info, ok := next.(Information)
	require.True(t, ok)
	assert.Equal(t, "broken", info.Form.Email, "rejected input stays in the form")
	assert.Equal(t, form.Phone, info.Form.Phone)
}

func TestShippingRequiresNonEmptyCart(t *testing.T) {
	state := Shipping{Form: validForm()}

	_, err := Reduce(state, ProceedToPayment{Items: nil}, Rules{})
	assert.ErrorIs(t, err, ErrEmptyCart)

	next, err := Reduce(state, ProceedToPayment{Items: someItems()}, Rules{})
	require.NoError(t, err)
	assert.Equal(t, StepPayment, next.Step())
}

func TestNonServiceableAddressDoesNotBlock(t *testing.T) {
	state := Shipping{Form: validForm()}

	next, err := Reduce(state, DeliveryChecked{Estimate: DeliveryEstimate{Serviceable: false}}, Rules{})
	require.NoError(t, err)

	shippingState := next.(Shipping)
	require.NotNil(t, shippingState.Delivery)
	assert.False(t, shippingState.Delivery.Serviceable)

	// The shopper can still proceed to payment.
	next, err = Reduce(shippingState, ProceedToPayment{Items: someItems()}, Rules{})
	require.NoError(t, err)
	assert.Equal(t, StepPayment, next.Step())
}

func TestBackwardTransitionsPreserveData(t *testing.T) {
	form := validForm()
	est := &DeliveryEstimate{Serviceable: true, ShippingCharge: 49, ETADays: 3}
	state := Payment{Form: form, Delivery: est, Items: someItems()}

	back, err := Reduce(state, GoBack{}, Rules{})
	require.NoError(t, err)
	shippingState, ok := back.(Shipping)
	require.True(t, ok)
	assert.Equal(t, form, shippingState.Form)
	assert.Equal(t, est, shippingState.Delivery)

	back, err = Reduce(shippingState, GoBack{}, Rules{})
	require.NoError(t, err)
	info, ok := back.(Information)
	require.True(t, ok)
	assert.Equal(t, form, info.Form)
}

func TestOnlinePaymentCompletion(t *testing.T) {
	state := Payment{Form: validForm(), Items: someItems()}

	_, err := Reduce(state, OnlinePaymentCompleted{OrderNumber: "ORD-1"}, Rules{})
	assert.ErrorIs(t, err, ErrPaymentNotVerified)

	next, err := Reduce(state, OnlinePaymentCompleted{PaymentRef: "pay_123", OrderNumber: "ORD-1"}, Rules{})
	require.NoError(t, err)
	done := next.(Completed)
	assert.Equal(t, "pay_123", done.PaymentRef)
	assert.Equal(t, models.PaymentMethodOnline, done.Method)
}

func TestCODAdvanceGating(t *testing.T) {
	rules := Rules{CODAdvanceRequired: true}
	state := Payment{Form: validForm(), Items: someItems()}

	// Placing a COD order before the advance is verified must be rejected.
	next, err := Reduce(state, CODOrderPlaced{OrderNumber: "ORD-2"}, rules)
	assert.ErrorIs(t, err, ErrAdvanceRequired)
	assert.Equal(t, StepPayment, next.Step())

	next, err = Reduce(state, AdvanceVerified{PaymentRef: "pay_adv"}, rules)
	require.NoError(t, err)

	next, err = Reduce(next, CODOrderPlaced{OrderNumber: "ORD-2"}, rules)
	require.NoError(t, err)
	done := next.(Completed)
	assert.Equal(t, "pay_adv", done.PaymentRef)
	assert.Equal(t, models.PaymentMethodCOD, done.Method)
}

func TestCODWithoutAdvanceConfigured(t *testing.T) {
	state := Payment{Form: validForm(), Items: someItems()}

	next, err := Reduce(state, CODOrderPlaced{OrderNumber: "ORD-3"}, Rules{})
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, next.Step())
}

func TestOrderPersistFailureIsDistinct(t *testing.T) {
	state := Payment{Form: validForm(), Items: someItems()}

	next, err := Reduce(state, OrderPersistFailed{PaymentRef: "pay_lost"}, Rules{})
	require.ErrorIs(t, err, ErrPaymentCapturedOrderMissing)
	assert.Contains(t, err.Error(), "pay_lost", "payment reference must not be swallowed")
	assert.Equal(t, StepPayment, next.Step(), "wizard stays on payment for retry/support")
}

func TestCompletedIsTerminal(t *testing.T) {
	done := Completed{OrderNumber: "ORD-4"}
	next, err := Reduce(done, GoBack{}, Rules{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, done, next)
}
