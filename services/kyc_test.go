package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
)

func TestRecordKYCDecision(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	kyc := NewStoreKYC(st.Users())
	user := &models.User{ID: uuid.New(), FullName: "Wanjiru", Role: models.RoleDriver, KYCStatus: models.KYCApproved}

	if err := kyc.RecordDecision(ctx, models.Driver(user.ID), user); !models.IsAuthorization(err) {
		t.Fatalf("expected users to be refused, got %v", err)
	}
	admin := models.Admin(uuid.New())
	if err := kyc.RecordDecision(ctx, admin, &models.User{ID: uuid.New(), Role: models.RolePassenger, KYCStatus: "maybe"}); !models.IsValidation(err) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}
	if err := kyc.RecordDecision(ctx, admin, user); err != nil {
		t.Fatalf("record decision: %v", err)
	}

	ok, err := kyc.IsApproved(ctx, user.ID)
	if err != nil || !ok {
		t.Fatalf("expected approved, got %v, %v", ok, err)
	}

	user.KYCStatus = models.KYCRejected
	if err := kyc.RecordDecision(ctx, admin, user); err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if ok, _ := kyc.IsApproved(ctx, user.ID); ok {
		t.Fatal("expected rejection to revoke approval")
	}
}
