package domain

import "time"

// User is the signed-in account as reported by the identity provider.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
}

// DisplayName returns the name shown next to messages the user authors.
func (u *User) DisplayName() string {
	if u == nil {
		return "You"
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "You"
}

type DealStatus string

const (
	DealCreated               DealStatus = "created"
	DealFunded                DealStatus = "funded"
	DealInProgress            DealStatus = "in_progress"
	DealPendingRelease        DealStatus = "pending_release"
	DealCompleted             DealStatus = "completed"
	DealCanceled              DealStatus = "canceled"
	DealCancelRequestedBuyer  DealStatus = "cancel_requested_buyer"
	DealCancelRequestedSeller DealStatus = "cancel_requested_seller"
	DealDisputed              DealStatus = "disputed"
)

// Label is the human readable status used in notices.
func (s DealStatus) Label() string {
	switch s {
	case DealCreated:
		return "Created"
	case DealFunded:
		return "Funded"
	case DealInProgress:
		return "In Progress"
	case DealPendingRelease:
		return "Pending Release"
	case DealCompleted:
		return "Completed"
	case DealCanceled:
		return "Canceled"
	case DealCancelRequestedBuyer:
		return "Cancel Requested (Buyer)"
	case DealCancelRequestedSeller:
		return "Cancel Requested (Seller)"
	case DealDisputed:
		return "Disputed"
	default:
		return "Unknown"
	}
}

type FeePayer string

const (
	FeePayerSeller FeePayer = "seller"
	FeePayerBuyer  FeePayer = "buyer"
	FeePayerSplit  FeePayer = "split"
)

// Role is the side of a deal a user is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Deal is an escrow deal as returned by the API.
type Deal struct {
	ID             string     `json:"id"`
	DealID         string     `json:"deal_id"`
	Title          string     `json:"deal_title"`
	SellerID       string     `json:"seller_id"`
	SellerUsername string     `json:"seller_username"`
	BuyerID        string     `json:"buyer_id"`
	BuyerUsername  string     `json:"buyer_username"`
	CryptoType     string     `json:"crypto_type"`
	Amount         float64    `json:"amount"`
	USDValue       *float64   `json:"usd_value,omitempty"`
	FeePayer       FeePayer   `json:"fee_payer"`
	Status         DealStatus `json:"status"`
	EscrowAddress  string     `json:"escrow_address,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FeeAmount      *float64   `json:"fee_amount,omitempty"`
	FeeUSDValue    *float64   `json:"fee_usd_value,omitempty"`
}

// RoleOf reports which side of the deal the user is on. Anyone who is not the
// buyer is treated as the seller, matching how the API scopes deal access.
func (d *Deal) RoleOf(userID string) Role {
	if d.BuyerID == userID {
		return RoleBuyer
	}
	return RoleSeller
}

// CounterpartyID returns the id of the other participant.
func (d *Deal) CounterpartyID(userID string) string {
	if d.BuyerID == userID {
		return d.SellerID
	}
	return d.BuyerID
}

// IsTerminal reports whether no further actions are possible.
func (d *Deal) IsTerminal() bool {
	return d.Status == DealCompleted || d.Status == DealCanceled
}

// CancelRequestedBy returns the status meaning "role asked to cancel".
func CancelRequestedBy(r Role) DealStatus {
	if r == RoleBuyer {
		return DealCancelRequestedBuyer
	}
	return DealCancelRequestedSeller
}

type MessageType string

const (
	MessageUser            MessageType = "user"
	MessageSystem          MessageType = "system"
	MessageTransactionCard MessageType = "transaction_card"
	MessageWalletCard      MessageType = "wallet_card"
	MessageFile            MessageType = "file"
)

// ChatMessage is a single entry of a deal thread.
type ChatMessage struct {
	ID             string      `json:"id"`
	SenderID       string      `json:"sender_id"`
	SenderUsername string      `json:"sender_username"`
	Message        string      `json:"message"`
	CreatedAt      time.Time   `json:"created_at"`
	Type           MessageType `json:"type"`

	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	TransactionHash     string   `json:"transaction_hash,omitempty"`
	TransactionFrom     string   `json:"transaction_from,omitempty"`
	TransactionTo       string   `json:"transaction_to,omitempty"`
	TransactionAmount   *float64 `json:"transaction_amount,omitempty"`
	TransactionCurrency string   `json:"transaction_currency,omitempty"`
	TransactionGasFee   *float64 `json:"transaction_gas_fee,omitempty"`

	WalletAddress string `json:"wallet_address,omitempty"`
	WalletNetwork string `json:"wallet_network,omitempty"`

	// TempID is set by servers that echo the client's placeholder id back.
	TempID string `json:"tempId,omitempty"`
	// Pending marks a local placeholder not yet acknowledged by the server.
	Pending bool `json:"pending,omitempty"`
}

// Notification is a dashboard notification.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DealID    string    `json:"deal_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is a past counterparty listed on the dashboard.
type Contact struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	DealCount int       `json:"deal_count"`
	LastDeal  time.Time `json:"last_deal_at"`
}

// UserStats backs the dashboard stat cards.
type UserStats struct {
	ActiveDeals    int     `json:"active_deals"`
	CompletedDeals int     `json:"completed_deals"`
	TotalVolumeUSD float64 `json:"total_volume_usd"`
	InEscrowUSD    float64 `json:"in_escrow_usd"`
	DisputedDeals  int     `json:"disputed_deals"`
}
