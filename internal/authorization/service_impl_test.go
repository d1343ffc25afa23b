package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	registry, err := doctype.NewRegistry(config.DefaultDocumentsConfig())
	require.NoError(t, err)
	enforcer, err := NewEnforcer(registry)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizePurchaseOrderTable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	po := doctype.PurchaseOrder

	cases := []struct {
		name   string
		from   doctype.Status
		action doctype.Action
		roles  []doctype.Role
		ok     bool
	}{
		{"creator submits", doctype.StatusDraft, doctype.ActionSubmitForApproval, []doctype.Role{doctype.RoleCreator}, true},
		{"admin submits", doctype.StatusDraft, doctype.ActionSubmitForApproval, []doctype.Role{doctype.RoleAdmin}, true},
		{"stores cannot submit", doctype.StatusDraft, doctype.ActionSubmitForApproval, []doctype.Role{doctype.RoleStores}, false},
		{"approver approves", doctype.StatusPendingApproval, doctype.ActionApprove, []doctype.Role{doctype.RoleApprover}, true},
		{"admin cannot approve", doctype.StatusPendingApproval, doctype.ActionApprove, []doctype.Role{doctype.RoleAdmin}, false},
		{"stores receives", doctype.StatusSentToVendor, doctype.ActionReceiveFull, []doctype.Role{doctype.RoleStores}, true},
		{"any of several roles", doctype.StatusFullyReceived, doctype.ActionClose, []doctype.Role{doctype.RoleStores, doctype.RoleAdmin}, true},
		{"admin cancels open", doctype.StatusOpen, doctype.ActionCancel, []doctype.Role{doctype.RoleAdmin}, true},
		{"no roles", doctype.StatusDraft, doctype.ActionSubmitForApproval, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, po, tc.from, tc.action, tc.roles)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeIsScopedByDocumentType(t *testing.T) {
	svc := newTestService(t)
	assert.True(t, svc.Allowed(doctype.GRN, doctype.StatusPendingInspection, doctype.ActionAccept, []doctype.Role{doctype.RoleQuality}))
	assert.False(t, svc.Allowed(doctype.PurchaseOrder, doctype.StatusPendingInspection, doctype.ActionAccept, []doctype.Role{doctype.RoleQuality}))
}

func TestAuthorizeRejectsEmptyInput(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), "", doctype.StatusDraft, doctype.ActionApprove, []doctype.Role{doctype.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidObject)
	err = svc.Authorize(context.Background(), doctype.PurchaseOrder, doctype.StatusDraft, "", []doctype.Role{doctype.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidAction)
}
