package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kixikila/kixikila-backend/api/responses"
	"github.com/kixikila/kixikila-backend/api/validators"
	"github.com/kixikila/kixikila-backend/internal/memberships"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/logger"
)

type memberIDs struct {
	caller uuid.UUID
	group  uuid.UUID
	user   uuid.UUID
}

func resolveMemberIDs(r *http.Request) (memberIDs, error) {
	caller, err := callerID(r)
	if err != nil {
		return memberIDs{}, err
	}
	group, err := pathUUID(r, "groupID")
	if err != nil {
		return memberIDs{}, err
	}
	user, err := pathUUID(r, "userID")
	if err != nil {
		return memberIDs{}, err
	}
	return memberIDs{caller: caller, group: group, user: user}, nil
}

func memberAction(svc memberships.Service, logg *logger.Logger, fn func(r *http.Request, ids memberIDs) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "memberships service unavailable"))
			return
		}

		ids, err := resolveMemberIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r, ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListGroupMembers returns the roster of a group the caller belongs to.
func ListGroupMembers(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "memberships service unavailable"))
			return
		}

		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := pathUUID(r, "groupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		members, err := svc.ListMembers(r.Context(), caller, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, members)
	}
}

// ApproveMember admits a pending join request.
func ApproveMember(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return memberAction(svc, logg, func(r *http.Request, ids memberIDs) (any, error) {
		return svc.Approve(r.Context(), ids.caller, ids.group, ids.user)
	})
}

type suspendRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SuspendMember pauses a member's participation.
func SuspendMember(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "memberships service unavailable"))
			return
		}

		ids, err := resolveMemberIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body suspendRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Suspend(r.Context(), ids.caller, ids.group, ids.user, validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ReinstateMember returns a suspended member to active standing.
func ReinstateMember(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return memberAction(svc, logg, func(r *http.Request, ids memberIDs) (any, error) {
		return svc.Reinstate(r.Context(), ids.caller, ids.group, ids.user)
	})
}

// PromoteMember grants a member the admin role.
func PromoteMember(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return memberAction(svc, logg, func(r *http.Request, ids memberIDs) (any, error) {
		return svc.Promote(r.Context(), ids.caller, ids.group, ids.user)
	})
}
