package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kixikila/kixikila-backend/internal/memberships"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
)

type testMembershipsService struct {
	listFn      func(ctx context.Context, callerID, groupID uuid.UUID) ([]memberships.GroupMemberDTO, error)
	approveFn   func(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error)
	suspendFn   func(ctx context.Context, callerID, groupID, userID uuid.UUID, reason string) (*memberships.MembershipDTO, error)
	reinstateFn func(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error)
	promoteFn   func(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error)
}

func (s *testMembershipsService) ListMembers(ctx context.Context, callerID, groupID uuid.UUID) ([]memberships.GroupMemberDTO, error) {
	if s.listFn != nil {
		return s.listFn(ctx, callerID, groupID)
	}
	return nil, nil
}

func (s *testMembershipsService) Approve(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, callerID, groupID, userID)
	}
	return &memberships.MembershipDTO{}, nil
}

func (s *testMembershipsService) Suspend(ctx context.Context, callerID, groupID, userID uuid.UUID, reason string) (*memberships.MembershipDTO, error) {
	if s.suspendFn != nil {
		return s.suspendFn(ctx, callerID, groupID, userID, reason)
	}
	return &memberships.MembershipDTO{}, nil
}

func (s *testMembershipsService) Reinstate(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error) {
	if s.reinstateFn != nil {
		return s.reinstateFn(ctx, callerID, groupID, userID)
	}
	return &memberships.MembershipDTO{}, nil
}

func (s *testMembershipsService) Promote(ctx context.Context, callerID, groupID, userID uuid.UUID) (*memberships.MembershipDTO, error) {
	if s.promoteFn != nil {
		return s.promoteFn(ctx, callerID, groupID, userID)
	}
	return &memberships.MembershipDTO{}, nil
}

func addMemberRouteParams(req *http.Request, group, user string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("groupID", group)
	routeCtx.URLParams.Add("userID", user)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func memberRequest(method, action string, caller, group, user uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/groups/"+group.String()+"/members/"+user.String()+"/"+action, nil)
	req = asUser(req, caller)
	return addMemberRouteParams(req, group.String(), user.String())
}

func TestApproveMemberSuccess(t *testing.T) {
	callerID := uuid.New()
	groupID := uuid.New()
	userID := uuid.New()
	called := false
	svc := &testMembershipsService{
		approveFn: func(ctx context.Context, c, g, u uuid.UUID) (*memberships.MembershipDTO, error) {
			called = true
			if c != callerID || g != groupID || u != userID {
				t.Fatalf("args not forwarded: %s %s %s", c, g, u)
			}
			return &memberships.MembershipDTO{GroupID: g, UserID: u}, nil
		},
	}

	req := memberRequest(http.MethodPost, "approve", callerID, groupID, userID)
	resp := httptest.NewRecorder()
	ApproveMember(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !called {
		t.Fatal("expected service called")
	}
}

func TestApproveMemberForbidden(t *testing.T) {
	svc := &testMembershipsService{
		approveFn: func(ctx context.Context, c, g, u uuid.UUID) (*memberships.MembershipDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller may not manage members")
		},
	}

	req := memberRequest(http.MethodPost, "approve", uuid.New(), uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	ApproveMember(svc, testLogger())(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestSuspendMemberForwardsReason(t *testing.T) {
	callerID := uuid.New()
	groupID := uuid.New()
	userID := uuid.New()
	var gotReason string
	svc := &testMembershipsService{
		suspendFn: func(ctx context.Context, c, g, u uuid.UUID, reason string) (*memberships.MembershipDTO, error) {
			gotReason = reason
			return &memberships.MembershipDTO{GroupID: g, UserID: u}, nil
		},
	}

	body := strings.NewReader(`{"reason":"missed two contributions"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/"+groupID.String()+"/members/"+userID.String()+"/suspend", body)
	req = asUser(req, callerID)
	req = addMemberRouteParams(req, groupID.String(), userID.String())
	resp := httptest.NewRecorder()
	SuspendMember(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != "missed two contributions" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
}

func TestSuspendMemberEmptyBodyAllowed(t *testing.T) {
	svc := &testMembershipsService{
		suspendFn: func(ctx context.Context, c, g, u uuid.UUID, reason string) (*memberships.MembershipDTO, error) {
			if reason != "" {
				t.Fatalf("expected empty reason got %q", reason)
			}
			return &memberships.MembershipDTO{}, nil
		},
	}

	req := memberRequest(http.MethodPost, "suspend", uuid.New(), uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	SuspendMember(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestReinstateMemberInvalidUserID(t *testing.T) {
	groupID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/"+groupID.String()+"/members/bad/reinstate", nil)
	req = asUser(req, uuid.New())
	req = addMemberRouteParams(req, groupID.String(), "bad")
	resp := httptest.NewRecorder()
	ReinstateMember(&testMembershipsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListGroupMembersSuccess(t *testing.T) {
	callerID := uuid.New()
	groupID := uuid.New()
	svc := &testMembershipsService{
		listFn: func(ctx context.Context, c, g uuid.UUID) ([]memberships.GroupMemberDTO, error) {
			if c != callerID || g != groupID {
				t.Fatalf("args not forwarded")
			}
			return []memberships.GroupMemberDTO{{GroupID: g}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/"+groupID.String()+"/members", nil)
	req = asUser(req, callerID)
	req = addRouteParam(req, "groupID", groupID.String())
	resp := httptest.NewRecorder()
	ListGroupMembers(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
