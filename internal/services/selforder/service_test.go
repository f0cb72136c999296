package selforder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"selforder-system/internal/models"
)

func TestCreateSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	before := time.Now().UTC()
	resp, err := f.service.CreateSession(ctx, &models.CreateSessionRequest{OutletID: "outlet-1"}, "req-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if !models.IsSessionCode(resp.SessionCode) {
		t.Errorf("session code %q does not have the expected shape", resp.SessionCode)
	}
	if !strings.HasSuffix(resp.QRCodeURL, "/sessions/"+resp.SessionCode) {
		t.Errorf("QR url %q does not point at the session", resp.QRCodeURL)
	}

	wantExpiry := before.Add(2 * time.Hour)
	if resp.ExpiresAt.Before(wantExpiry) || resp.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about %v", resp.ExpiresAt, wantExpiry)
	}

	session, err := f.store.GetSession(ctx, resp.SessionCode)
	if err != nil {
		t.Fatalf("GetSession() after create error = %v", err)
	}
	if session.Status != models.SessionActive {
		t.Errorf("new session status = %s, want active", session.Status)
	}
	if session.Language != "en" {
		t.Errorf("language = %s, want default en", session.Language)
	}
}

func TestCreateSessionUnknownOutlet(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateSession(context.Background(), &models.CreateSessionRequest{OutletID: "missing-outlet"}, "req-1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("CreateSession() error = %v, want ErrNotFound", err)
	}
}

func TestGetSessionReportsExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name      string
		status    models.SessionStatus
		expiresAt time.Time
		wantErr   error
	}{
		{"active and within deadline", models.SessionActive, now.Add(time.Hour), nil},
		{"expired status", models.SessionExpired, now.Add(time.Hour), models.ErrSessionExpired},
		{"active but past deadline", models.SessionActive, now.Add(-time.Minute), models.ErrSessionExpired},
		{"submitted past deadline stays visible", models.SessionSubmitted, now.Add(-time.Minute), nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := models.GenerateSessionCode(now.Add(time.Duration(i) * time.Second))
			f.store.seedSession(code, tt.status, tt.expiresAt)

			_, err := f.service.GetSession(ctx, code)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("GetSession() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetSession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetSessionUnknownCode(t *testing.T) {
	f := newFixture()

	_, err := f.service.GetSession(context.Background(), "SO-XXXX-YYYY")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}
}

func TestAddItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	code := models.GenerateSessionCode(now)
	f.store.seedSession(code, models.SessionActive, now.Add(time.Hour))

	item, err := f.service.AddItem(ctx, code, &models.AddItemRequest{ProductID: "prod-1", Quantity: 2}, "req-1")
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if item.UnitPrice != 10000 {
		t.Errorf("snapshotted unit price = %d, want 10000", item.UnitPrice)
	}

	variant := "variant-1"
	item, err = f.service.AddItem(ctx, code, &models.AddItemRequest{ProductID: "prod-1", VariantID: &variant, Quantity: 1}, "req-1")
	if err != nil {
		t.Fatalf("AddItem() with variant error = %v", err)
	}
	if item.UnitPrice != 12000 {
		t.Errorf("variant unit price = %d, want 12000", item.UnitPrice)
	}

	items, err := f.store.ListItems(ctx, code)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("cart has %d items, want 2", len(items))
	}
}

func TestAddItemRejectsWrongState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name      string
		status    models.SessionStatus
		expiresAt time.Time
		wantErr   error
	}{
		{"submitted session", models.SessionSubmitted, now.Add(time.Hour), models.ErrInvalidState},
		{"paid session", models.SessionPaid, now.Add(time.Hour), models.ErrInvalidState},
		{"active but past deadline", models.SessionActive, now.Add(-time.Minute), models.ErrSessionExpired},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := models.GenerateSessionCode(now.Add(time.Duration(i+10) * time.Second))
			f.store.seedSession(code, tt.status, tt.expiresAt)

			_, err := f.service.AddItem(ctx, code, &models.AddItemRequest{ProductID: "prod-1", Quantity: 1}, "req-1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddItem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddItemUnknownProduct(t *testing.T) {
	f := newFixture()
	now := time.Now().UTC()

	code := models.GenerateSessionCode(now)
	f.store.seedSession(code, models.SessionActive, now.Add(time.Hour))

	_, err := f.service.AddItem(context.Background(), code, &models.AddItemRequest{ProductID: "prod-unknown", Quantity: 1}, "req-1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("AddItem() error = %v, want ErrNotFound", err)
	}
}
