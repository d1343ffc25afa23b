// Package doctype holds the declarative description of every document kind:
// its numbering settings and its lifecycle transition table.
package doctype

import (
	"errors"
	"strings"

	"github.com/smallbiznis/pipetrade/internal/fiscalyear"
)

type DocumentType string

const (
	Quotation     DocumentType = "QUOTATION"
	SalesOrder    DocumentType = "SALES_ORDER"
	PurchaseOrder DocumentType = "PURCHASE_ORDER"
	Invoice       DocumentType = "INVOICE"
	GRN           DocumentType = "GRN"
	DispatchNote  DocumentType = "DISPATCH_NOTE"
	CreditNote    DocumentType = "CREDIT_NOTE"
	DebitNote     DocumentType = "DEBIT_NOTE"
	Receipt       DocumentType = "RECEIPT"
)

func ParseDocumentType(raw string) DocumentType {
	return DocumentType(strings.ToUpper(strings.TrimSpace(raw)))
}

func (t DocumentType) String() string { return string(t) }

type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPendingApproval   Status = "PENDING_APPROVAL"
	StatusOpen              Status = "OPEN"
	StatusSentToVendor      Status = "SENT_TO_VENDOR"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusFullyReceived     Status = "FULLY_RECEIVED"
	StatusClosed            Status = "CLOSED"
	StatusCancelled         Status = "CANCELLED"

	StatusApproved            Status = "APPROVED"
	StatusSentToCustomer      Status = "SENT_TO_CUSTOMER"
	StatusAccepted            Status = "ACCEPTED"
	StatusDeclined            Status = "DECLINED"
	StatusExpired             Status = "EXPIRED"
	StatusConfirmed           Status = "CONFIRMED"
	StatusPartiallyDispatched Status = "PARTIALLY_DISPATCHED"
	StatusFullyDispatched     Status = "FULLY_DISPATCHED"
	StatusIssued              Status = "ISSUED"
	StatusPartiallyPaid       Status = "PARTIALLY_PAID"
	StatusPaid                Status = "PAID"
	StatusPendingInspection   Status = "PENDING_INSPECTION"
	StatusReady               Status = "READY"
	StatusDispatched          Status = "DISPATCHED"
	StatusDelivered           Status = "DELIVERED"
	StatusAdjusted            Status = "ADJUSTED"
	StatusReconciled          Status = "RECONCILED"
)

type Action string

const (
	ActionSubmitForApproval Action = "submit_for_approval"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionSendToVendor      Action = "send_to_vendor"
	ActionReceivePartial    Action = "receive_partial"
	ActionReceiveFull       Action = "receive_full"
	ActionClose             Action = "close"
	ActionCancel            Action = "cancel"

	ActionSendToCustomer       Action = "send_to_customer"
	ActionAccept               Action = "accept"
	ActionDecline              Action = "decline"
	ActionExpire               Action = "expire"
	ActionDispatchPartial      Action = "dispatch_partial"
	ActionDispatchFull         Action = "dispatch_full"
	ActionRecordPartialPayment Action = "record_partial_payment"
	ActionMarkPaid             Action = "mark_paid"
	ActionSubmitForInspection  Action = "submit_for_inspection"
	ActionRejectInspection     Action = "reject_inspection"
	ActionDispatch             Action = "dispatch"
	ActionDeliver              Action = "deliver"
	ActionAdjust               Action = "adjust"
	ActionReconcile            Action = "reconcile"
)

func ParseAction(raw string) Action {
	return Action(strings.ToLower(strings.TrimSpace(raw)))
}

type Role string

const (
	// RoleCreator is held implicitly by the actor who created the document.
	RoleCreator  Role = "creator"
	RoleAdmin    Role = "admin"
	RoleApprover Role = "approver"
	RoleStores   Role = "stores"
	RoleSales    Role = "sales"
	RoleAccounts Role = "accounts"
	RoleQuality  Role = "quality"
)

func ParseRoles(raw string) []Role {
	parts := strings.Split(raw, ",")
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		roles = append(roles, Role(p))
	}
	return roles
}

type RemarksRequirement string

const (
	RemarksNone      RemarksRequirement = "none"
	RemarksOptional  RemarksRequirement = "optional"
	RemarksMandatory RemarksRequirement = "mandatory"
)

type NumberingPolicy string

const (
	// NumberFollowsChain reuses the original number; only the version increments.
	NumberFollowsChain NumberingPolicy = "number_follows_chain"
	// NumberPerRevision treats each revision as a new legal instrument.
	NumberPerRevision NumberingPolicy = "number_per_revision"
)

var (
	ErrInvalidConfiguration = fiscalyear.ErrInvalidConfiguration
	ErrUnknownDocumentType  = errors.New("unknown_document_type")
)
