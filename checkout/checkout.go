// Package checkout models the three-step checkout wizard as an explicit
// state machine: a tagged union of step states and a pure reducer. The
// reducer owns every forward-transition guard, so the rules are testable
// without a browser, a database, or the payment gateway.
package checkout

import (
	"errors"
	"fmt"
	"regexp"

	"checkout-service/models"
)

var (
	ErrVerificationRequired = errors.New("account creation requires a verified contact channel")
	ErrEmptyCart            = errors.New("cart must contain at least one item")
	ErrAdvanceRequired      = errors.New("cod advance payment must be verified first")
	ErrPaymentNotVerified   = errors.New("online payment must be verified before completion")
	ErrInvalidTransition    = errors.New("event not valid in current step")

	// ErrPaymentCapturedOrderMissing is the money-at-risk case: the gateway
	// confirmed the charge but the order row was never written. It must stay
	// distinguishable from every other failure so the payment reference is
	// not silently lost.
	ErrPaymentCapturedOrderMissing = errors.New("payment captured but order not confirmed")
)

var (
	emailRx   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRx   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodeRx = regexp.MustCompile(`^[0-9]{6}$`)
)

// ContactForm is everything entered on the Information step.
type ContactForm struct {
	Name          string
	Email         string
	Phone         string
	Address       models.ShippingAddress
	CreateAccount bool
	// OTPChannel is the channel the shopper chose to verify when
	// CreateAccount is set. Empty otherwise.
	OTPChannel models.OTPChannel
}

type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate applies the same format rules the server re-checks on order
// creation: RFC-ish email, 10-digit Indian mobile starting 6-9, 6-digit PIN.
func (f ContactForm) Validate() error {
	if f.Name == "" {
		return &FieldError{Field: "name", Reason: "required"}
	}
	if !emailRx.MatchString(f.Email) {
		return &FieldError{Field: "email", Reason: "malformed"}
	}
	if !phoneRx.MatchString(f.Phone) {
		return &FieldError{Field: "phone", Reason: "must be 10 digits starting 6-9"}
	}
	if f.Address.AddressLine1 == "" {
		return &FieldError{Field: "address_line1", Reason: "required"}
	}
	if f.Address.City == "" {
		return &FieldError{Field: "city", Reason: "required"}
	}
	if f.Address.State == "" {
		return &FieldError{Field: "state", Reason: "required"}
	}
	if !pincodeRx.MatchString(f.Address.Pincode) {
		return &FieldError{Field: "pincode", Reason: "must be 6 digits"}
	}
	if f.Address.Country == "" {
		return &FieldError{Field: "country", Reason: "required"}
	}
	return nil
}

// DeliveryEstimate is the shipping partner's answer for the entered address.
// It is informational: a non-serviceable address does not block checkout.
type DeliveryEstimate struct {
	Serviceable    bool
	ShippingCharge float64
	ETADays        int
	CODAvailable   bool
}

// Rules carries the deployment configuration the guards depend on.
type Rules struct {
	// CODAdvanceRequired gates cash-on-delivery behind a verified advance
	// micro-payment.
	CODAdvanceRequired bool
}

type Step string

const (
	StepInformation Step = "information"
	StepShipping    Step = "shipping"
	StepPayment     Step = "payment"
	StepCompleted   Step = "completed"
)

// State is the tagged union of wizard steps. Each concrete state carries
// only the data that is valid at that step.
type State interface {
	Step() Step
}

type Information struct {
	Form ContactForm
}

func (Information) Step() Step { return StepInformation }

type Shipping struct {
	Form     ContactForm
	Delivery *DeliveryEstimate
}

func (Shipping) Step() Step { return StepShipping }

type Payment struct {
	Form     ContactForm
	Delivery *DeliveryEstimate
	Items    []models.CartItem
	// AdvanceVerifiedRef is set once a COD advance payment has been
	// signature-verified.
	AdvanceVerifiedRef string
}

func (Payment) Step() Step { return StepPayment }

type Completed struct {
	OrderNumber string
	PaymentRef  string
	Method      models.PaymentMethod
}

func (Completed) Step() Step { return StepCompleted }

// Event is the tagged union of things that can happen to the wizard.
type Event interface {
	isEvent()
}

// SubmitInformation attempts Information -> Shipping. ChannelVerified is
// the verification gate's answer for Form.OTPChannel; it is only consulted
// when Form.CreateAccount is set, so anonymous guests never hit the OTP wall.
type SubmitInformation struct {
	Form            ContactForm
	ChannelVerified bool
}

// DeliveryChecked records the shipping partner's estimate while on the
// Shipping step. It never fails the reducer.
type DeliveryChecked struct {
	Estimate DeliveryEstimate
}

// ProceedToPayment attempts Shipping -> Payment with the current cart.
type ProceedToPayment struct {
	Items []models.CartItem
}

// AdvanceVerified marks the COD advance payment as captured and verified.
type AdvanceVerified struct {
	PaymentRef string
}

// OnlinePaymentCompleted attempts Payment -> Completed for the online path:
// signature already verified server-side and the order persisted.
type OnlinePaymentCompleted struct {
	PaymentRef  string
	OrderNumber string
}

// CODOrderPlaced attempts Payment -> Completed for cash on delivery.
type CODOrderPlaced struct {
	OrderNumber string
}

// OrderPersistFailed reports that a payment was captured but order creation
// failed afterwards. The wizard stays on Payment; the error it returns must
// be surfaced verbatim, reference included.
type OrderPersistFailed struct {
	PaymentRef string
}

// GoBack steps the wizard backwards. Always allowed, never loses data.
type GoBack struct{}

func (SubmitInformation) isEvent()      {}
func (DeliveryChecked) isEvent()        {}
func (ProceedToPayment) isEvent()       {}
func (AdvanceVerified) isEvent()        {}
func (OnlinePaymentCompleted) isEvent() {}
func (CODOrderPlaced) isEvent()         {}
func (OrderPersistFailed) isEvent()     {}
func (GoBack) isEvent()                 {}

// Reduce applies an event to a state and returns the next state. On error
// the returned state is the unchanged input: the wizard never auto-retries
// and never drops entered data.
func Reduce(state State, event Event, rules Rules) (State, error) {
	switch s := state.(type) {
	case Information:
		return reduceInformation(s, event)
	case Shipping:
		return reduceShipping(s, event)
	case Payment:
		return reducePayment(s, event, rules)
	case Completed:
		// Terminal. Nothing moves a completed checkout.
		return s, ErrInvalidTransition
	}
	return state, ErrInvalidTransition
}

func reduceInformation(s Information, event Event) (State, error) {
	switch e := event.(type) {
	case SubmitInformation:
		if err := e.Form.Validate(); err != nil {
			return Information{Form: e.Form}, err
		}
		if e.Form.CreateAccount && !e.ChannelVerified {
			return Information{Form: e.Form}, ErrVerificationRequired
		}
		return Shipping{Form: e.Form}, nil
	case GoBack:
		return s, nil
	}
	return s, ErrInvalidTransition
}

func reduceShipping(s Shipping, event Event) (State, error) {
	switch e := event.(type) {
	case DeliveryChecked:
		est := e.Estimate
		return Shipping{Form: s.Form, Delivery: &est}, nil
	case ProceedToPayment:
		if len(e.Items) == 0 {
			return s, ErrEmptyCart
		}
		// Serviceability is carried forward but deliberately not a guard.
		return Payment{Form: s.Form, Delivery: s.Delivery, Items: e.Items}, nil
	case GoBack:
		return Information{Form: s.Form}, nil
	}
	return s, ErrInvalidTransition
}

func reducePayment(s Payment, event Event, rules Rules) (State, error) {
	switch e := event.(type) {
	case AdvanceVerified:
		next := s
		next.AdvanceVerifiedRef = e.PaymentRef
		return next, nil
	case OnlinePaymentCompleted:
		if e.PaymentRef == "" {
			return s, ErrPaymentNotVerified
		}
		return Completed{OrderNumber: e.OrderNumber, PaymentRef: e.PaymentRef, Method: models.PaymentMethodOnline}, nil
	case CODOrderPlaced:
		if rules.CODAdvanceRequired && s.AdvanceVerifiedRef == "" {
			return s, ErrAdvanceRequired
		}
		return Completed{OrderNumber: e.OrderNumber, PaymentRef: s.AdvanceVerifiedRef, Method: models.PaymentMethodCOD}, nil
	case OrderPersistFailed:
		return s, fmt.Errorf("%w (payment %s)", ErrPaymentCapturedOrderMissing, e.PaymentRef)
	case GoBack:
		return Shipping{Form: s.Form, Delivery: s.Delivery}, nil
	}
	return s, ErrInvalidTransition
}
