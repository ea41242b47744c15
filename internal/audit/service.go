package audit

import (
	"context"
	"fmt"

	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

// Service exposes the admin-facing audit trail queries.
type Service interface {
	List(ctx context.Context, params pagination.Params, filters Filters) (*EntryList, error)
}

type service struct {
	repo Repository
}

// NewService builds the audit query service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*EntryList, error) {
	if filters.Entity != nil && !filters.Entity.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown entity %q", *filters.Entity))
	}
	if filters.Action != nil && !filters.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", *filters.Action))
	}
	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date range end precedes start")
	}

	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return list, nil
}
