package utils

import (
	"math/rand"
	"strings"
)

const paymentReferenceLength = 10
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PaymentReferencePrefix marks merchant references issued by this service.
const PaymentReferencePrefix = "SS"

// GeneratePaymentReference returns the merchant reference sent to payment
// providers with a collection request. Providers echo it back on callbacks.
// Uniqueness is enforced by the payment_intents.reference index.
func GeneratePaymentReference() string {
	var b strings.Builder
	b.Grow(len(PaymentReferencePrefix) + paymentReferenceLength)
	b.WriteString(PaymentReferencePrefix)
	for i := 0; i < paymentReferenceLength; i++ {
		b.WriteByte(letterBytes[rand.Intn(len(letterBytes))])
	}
	return b.String()
}
