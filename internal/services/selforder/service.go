package selforder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

const defaultLanguage = "en"

// Service owns the self-order session lifecycle: creation, cart mutation and
// lookups. Submission and payment live in Handoff and Orchestrator.
type Service struct {
	store         Store
	catalog       Catalog
	outlets       OutletConfig
	logger        *logger.Logger
	sessionWindow time.Duration
	baseURL       string
}

// NewService creates a session service
func NewService(store Store, catalog Catalog, outlets OutletConfig, log *logger.Logger, sessionWindow time.Duration, baseURL string) *Service {
	return &Service{
		store:         store,
		catalog:       catalog,
		outlets:       outlets,
		logger:        log,
		sessionWindow: sessionWindow,
		baseURL:       baseURL,
	}
}

// CreateSession creates an active session with a fresh code and a deadline of
// now + the configured window
func (s *Service) CreateSession(ctx context.Context, req *models.CreateSessionRequest, requestID string) (*models.CreateSessionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Outlet must exist; rates are loaded again at total time
	if _, _, err := s.outlets.Rates(ctx, req.OutletID); err != nil {
		return nil, err
	}

	language := req.Language
	if language == "" {
		language = defaultLanguage
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		Code:      models.GenerateSessionCode(now),
		OutletID:  req.OutletID,
		TableID:   req.TableID,
		Status:    models.SessionActive,
		Language:  language,
		ExpiresAt: now.Add(s.sessionWindow),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("session_created", fmt.Sprintf("Created session %s", session.Code), requestID, map[string]interface{}{
		"session_code": session.Code,
		"outlet_id":    session.OutletID,
		"expires_at":   session.ExpiresAt,
	})

	return &models.CreateSessionResponse{
		SessionID:   session.ID,
		SessionCode: session.Code,
		QRCodeURL:   fmt.Sprintf("%s/sessions/%s", s.baseURL, session.Code),
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// GetSession returns the session and its cart. A session past its deadline is
// reported expired even before the sweep has caught it.
func (s *Service) GetSession(ctx context.Context, code string) (*models.SessionDetailResponse, error) {
	session, err := s.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionExpired || (session.Status == models.SessionActive && session.PastDeadline(time.Now().UTC())) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionExpired, code)
	}

	items, err := s.store.ListItems(ctx, code)
	if err != nil {
		return nil, err
	}

	return &models.SessionDetailResponse{
		Session: session,
		Items:   items,
	}, nil
}

// AddItem appends a cart line to an active, unexpired session. The unit price
// is snapshotted from the catalog at add time.
func (s *Service) AddItem(ctx context.Context, code string, req *models.AddItemRequest, requestID string) (*models.CartItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: session %s is %s", models.ErrInvalidState, code, session.Status)
	}
	// The sweep may not have run yet; an overdue session is already dead.
	if session.PastDeadline(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionExpired, code)
	}

	unitPrice, err := s.catalog.ResolvePrice(ctx, req.ProductID, req.VariantID)
	if err != nil {
		return nil, err
	}

	item := &models.CartItem{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		UnitPrice: unitPrice,
		Modifiers: req.Modifiers,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.AddItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	s.logger.Debug("cart_item_added", fmt.Sprintf("Added item to session %s", code), requestID, map[string]interface{}{
		"session_code": code,
		"product_id":   req.ProductID,
		"quantity":     req.Quantity,
		"unit_price":   unitPrice,
	})

	return item, nil
}
