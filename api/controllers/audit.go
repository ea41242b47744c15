package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storefrontlabs/storefront-backend/api/responses"
	"github.com/storefrontlabs/storefront-backend/api/validators"
	auditsvc "github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
	"github.com/storefrontlabs/storefront-backend/pkg/logger"
)

// AdminAuditList exposes the audit trail to privileged operators, newest
// entries first.
func AdminAuditList(svc auditsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := parseAuditFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":  list.Entries,
			"has_more": list.HasMore,
		})
	}
}

func parseAuditFilters(r *http.Request) (auditsvc.Filters, error) {
	var filters auditsvc.Filters

	if raw := strings.TrimSpace(r.URL.Query().Get("entity")); raw != "" {
		entity := enums.AuditEntity(raw)
		filters.Entity = &entity
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("action")); raw != "" {
		action := enums.AuditAction(raw)
		filters.Action = &action
	}

	recordID, err := validators.ParseQueryUUID(r, "record_id")
	if err != nil {
		return auditsvc.Filters{}, err
	}
	if recordID != uuid.Nil {
		filters.RecordID = &recordID
	}
	actorID, err := validators.ParseQueryUUID(r, "actor_id")
	if err != nil {
		return auditsvc.Filters{}, err
	}
	if actorID != uuid.Nil {
		filters.ActorID = &actorID
	}

	from, err := parseQueryTime(r, "from")
	if err != nil {
		return auditsvc.Filters{}, err
	}
	filters.From = from
	to, err := parseQueryTime(r, "to")
	if err != nil {
		return auditsvc.Filters{}, err
	}
	filters.To = to

	return filters, nil
}

func parseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "timestamp must be RFC3339").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}
