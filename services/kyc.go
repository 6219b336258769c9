package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
)

// KYCChecker answers whether a user passed identity verification.
type KYCChecker interface {
	IsApproved(ctx context.Context, userID uuid.UUID) (bool, error)
}

// StoreKYC reads verification decisions recorded in the users table.
type StoreKYC struct {
	users store.UserRepository
}

func NewStoreKYC(users store.UserRepository) *StoreKYC {
	return &StoreKYC{users: users}
}

func (k *StoreKYC) IsApproved(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := k.users.Get(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user.KYCStatus == models.KYCApproved, nil
}

// RecordDecision stores a verification outcome received from the KYC
// service. Only admins may call it.
func (k *StoreKYC) RecordDecision(ctx context.Context, actor models.Actor, user *models.User) error {
	if !actor.IsAdmin() {
		return models.AuthorizationError{Reason: "only admins can record verification decisions"}
	}
	switch user.KYCStatus {
	case models.KYCPending, models.KYCApproved, models.KYCRejected:
	default:
		return models.ValidationError{Field: "kyc_status", Msg: "must be pending, approved or rejected"}
	}
	if _, ok := models.ParseRole(string(user.Role)); !ok || user.Role == models.RoleAdmin {
		return models.ValidationError{Field: "role", Msg: "must be passenger or driver"}
	}
	return k.users.Upsert(ctx, user)
}
