package platform

import (
	"errors"
	"strings"
)

// ErrShopNotConfigured indicates no credentials exist for a shop.
var ErrShopNotConfigured = errors.New("shop not configured")

// UserError is a field-level validation error returned by a mutation.
type UserError struct {
	Field   []string
	Message string
}

// UserErrors aggregates the userErrors of one mutation.
type UserErrors []UserError

// Error joins all messages into one string.
func (e UserErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ue := range e {
		if len(ue.Field) > 0 {
			msgs[i] = strings.Join(ue.Field, ".") + ": " + ue.Message
		} else {
			msgs[i] = ue.Message
		}
	}
	return strings.Join(msgs, "; ")
}
