// Package transaction defines the inbound transaction schema and its validator.
package transaction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a transaction amount. Webhook senders deliver it as either a
// JSON number or a numeric string; after validation it always carries the
// numeric form and marshals as a number.
type Amount float64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f, ok := toFloat(v)
	if !ok {
		return fmt.Errorf("amount %s is not numeric", string(b))
	}
	*a = Amount(f)
	return nil
}

// Customer identifies the paying customer.
type Customer struct {
	ID        string `json:"id"`
	Country   string `json:"country"`
	IPAddress string `json:"ip_address"`
}

// PaymentMethod describes the instrument used to pay.
type PaymentMethod struct {
	Type           string `json:"type"`
	LastFour       string `json:"last_four"`
	CountryOfIssue string `json:"country_of_issue"`
}

// Merchant identifies the receiving merchant.
type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Transaction is a validated webhook payload. Immutable once validated.
type Transaction struct {
	TransactionID string        `json:"transaction_id"`
	Timestamp     string        `json:"timestamp"`
	Amount        Amount        `json:"amount"`
	Currency      string        `json:"currency"`
	Customer      Customer      `json:"customer"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Merchant      Merchant      `json:"merchant"`
}

// Field lists drive validation order; the first violation wins.
var (
	topLevelFields = []string{"transaction_id", "timestamp", "amount", "currency", "customer", "payment_method", "merchant"}
	customerFields = []string{"id", "country", "ip_address"}
	paymentFields  = []string{"type", "last_four", "country_of_issue"}
	merchantFields = []string{"id", "name", "category"}
)

// Validate checks a raw webhook body against the transaction schema.
//
// On success it returns the decoded transaction, true, and "Valid".
// On the first violation it returns nil, false, and a message naming the
// offending field. Pure function of its input; no network or state access.
func Validate(raw []byte) (*Transaction, bool, string) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, false, "Data must be a JSON object"
	}

	for _, field := range topLevelFields {
		v, present := top[field]
		if !present {
			return nil, false, "Missing required field: " + field
		}
		if isEmpty(v) {
			return nil, false, "Empty value for required field: " + field
		}
	}

	if msg := checkAmount(top["amount"]); msg != "" {
		return nil, false, msg
	}

	nested := []struct {
		name   string
		fields []string
	}{
		{"customer", customerFields},
		{"payment_method", paymentFields},
		{"merchant", merchantFields},
	}
	for _, n := range nested {
		if msg := checkObject(top[n.name], n.name, n.fields); msg != "" {
			return nil, false, msg
		}
	}

	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok && typeErr.Field != "" {
			return nil, false, "Invalid value for field: " + typeErr.Field
		}
		return nil, false, "Data must be a JSON object"
	}

	return &tx, true, "Valid"
}

// isEmpty reports whether a raw value is JSON null or an empty string.
func isEmpty(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	return s == "null" || s == `""`
}

// checkAmount enforces that amount is a finite, non-negative number.
// A numeric string is accepted and coerced during the final decode.
func checkAmount(v json.RawMessage) string {
	var val interface{}
	if err := json.Unmarshal(v, &val); err != nil {
		return "Amount must be a valid number"
	}
	f, ok := toFloat(val)
	if !ok {
		return "Amount must be a valid number"
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return "Amount must be a valid positive number"
	}
	return ""
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// checkObject enforces presence and non-emptiness of an object's fields.
func checkObject(v json.RawMessage, name string, fields []string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil || obj == nil {
		// Not an object at all: report the first field as missing.
		return fmt.Sprintf("Missing %s field: %s", name, fields[0])
	}
	for _, field := range fields {
		fv, present := obj[field]
		if !present {
			return fmt.Sprintf("Missing %s field: %s", name, field)
		}
		if isEmpty(fv) {
			return fmt.Sprintf("Empty value for %s field: %s", name, field)
		}
	}
	return ""
}
