package models

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a self-order session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionSubmitted SessionStatus = "submitted"
	SessionPaid      SessionStatus = "paid"
	SessionExpired   SessionStatus = "expired"
)

// Session represents a self-order session bound to an outlet and, optionally,
// a table. Status only ever moves forward: active -> submitted -> paid, or
// active|submitted -> expired. paid and expired are terminal.
type Session struct {
	ID           string        `json:"session_id" db:"id"`
	Code         string        `json:"session_code" db:"code"`
	OutletID     string        `json:"outlet_id" db:"outlet_id"`
	TableID      *string       `json:"table_id,omitempty" db:"table_id"`
	Status       SessionStatus `json:"status" db:"status"`
	Language     string        `json:"language" db:"language"`
	OrderCreated bool          `json:"-" db:"order_created"`
	ExpiresAt    time.Time     `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether no further status transition is possible
func (s *Session) IsTerminal() bool {
	return s.Status == SessionPaid || s.Status == SessionExpired
}

// PastDeadline reports whether the session deadline has passed, regardless of
// whether the expire sweep has already transitioned it
func (s *Session) PastDeadline(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CartItem represents a line in a session's cart. Items may only be created
// while the owning session is active; they are bulk-deleted with the session.
type CartItem struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	ProductID string                 `json:"product_id" db:"product_id"`
	VariantID *string                `json:"variant_id,omitempty" db:"variant_id"`
	Quantity  int                    `json:"quantity" db:"quantity"`
	UnitPrice int64                  `json:"unit_price" db:"unit_price"`
	Modifiers map[string]interface{} `json:"modifiers,omitempty" db:"modifiers"`
	Notes     *string                `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

const sessionCodePrefix = "SO"

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateSessionCode builds a human-shareable session code in the form
// SO-<base36 unix ts>-<4 random chars>
func GenerateSessionCode(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	ts := strings.ToUpper(strconv.FormatInt(now.Unix(), 36))
	return fmt.Sprintf("%s-%s-%s", sessionCodePrefix, ts, suffix)
}

// IsSessionCode reports whether s has the session code shape
func IsSessionCode(s string) bool {
	parts := strings.Split(s, "-")
	return len(parts) == 3 && parts[0] == sessionCodePrefix && parts[1] != "" && len(parts[2]) == 4
}

// CreateSessionRequest is the body of POST /sessions
type CreateSessionRequest struct {
	OutletID string  `json:"outletId"`
	TableID  *string `json:"tableId,omitempty"`
	Language string  `json:"language,omitempty"`
}

// Validate checks the create-session request
func (r *CreateSessionRequest) Validate() error {
	if strings.TrimSpace(r.OutletID) == "" {
		return fmt.Errorf("outletId is required")
	}
	if r.TableID != nil && strings.TrimSpace(*r.TableID) == "" {
		return fmt.Errorf("tableId must not be empty when present")
	}
	return nil
}

// CreateSessionResponse is the body returned by POST /sessions
type CreateSessionResponse struct {
	SessionID   string    `json:"sessionId"`
	SessionCode string    `json:"sessionCode"`
	QRCodeURL   string    `json:"qrCodeUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AddItemRequest is the body of POST /sessions/{code}/items
type AddItemRequest struct {
	ProductID string                 `json:"productId"`
	VariantID *string                `json:"variantId,omitempty"`
	Quantity  int                    `json:"quantity"`
	Modifiers map[string]interface{} `json:"modifiers,omitempty"`
	Notes     *string                `json:"notes,omitempty"`
}

// Validate checks the add-item request
func (r *AddItemRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return fmt.Errorf("productId is required")
	}
	if r.VariantID != nil && strings.TrimSpace(*r.VariantID) == "" {
		return fmt.Errorf("variantId must not be empty when present")
	}
	if r.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	return nil
}

// ExtendSessionRequest is the body of PUT /sessions/{code}/extend
type ExtendSessionRequest struct {
	Minutes int `json:"minutes,omitempty"`
}

// SessionDetailResponse is the body of GET /sessions/{code}
type SessionDetailResponse struct {
	Session *Session   `json:"session"`
	Items   []CartItem `json:"items"`
}
