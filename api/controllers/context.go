package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/storefrontlabs/storefront-backend/api/middleware"
	customersvc "github.com/storefrontlabs/storefront-backend/internal/customers"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

// currentUserID extracts the authenticated user id seeded by the auth
// middleware.
func currentUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// currentCustomerID resolves the caller's customer profile. Cart and order
// rows hang off the customer, not the login.
func currentCustomerID(r *http.Request, customers customersvc.Service) (uuid.UUID, error) {
	userID, err := currentUserID(r)
	if err != nil {
		return uuid.Nil, err
	}
	profile, err := customers.GetProfile(r.Context(), userID)
	if err != nil {
		return uuid.Nil, err
	}
	return profile.ID, nil
}
