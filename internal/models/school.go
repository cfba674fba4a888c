package models

import "time"

// SchoolGatewayStatus tracks the school's account standing on the payment
// gateway, driven exclusively by account-status webhooks.
type SchoolGatewayStatus string

const (
	SchoolGatewayPending  SchoolGatewayStatus = "PENDING"
	SchoolGatewayActive   SchoolGatewayStatus = "ACTIVE"
	SchoolGatewayRejected SchoolGatewayStatus = "REJECTED"
	SchoolGatewayBlocked  SchoolGatewayStatus = "BLOCKED"
)

// School is the tenant. Only the gateway-account slice is modeled here.
type School struct {
	ID            string              `db:"id" json:"id"`
	Name          string              `db:"name" json:"name"`
	GatewayStatus SchoolGatewayStatus `db:"gateway_status" json:"gateway_status"`
	AccountID     *string             `db:"account_id" json:"account_id,omitempty"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}
