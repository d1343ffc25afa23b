package doctype

func roles(r ...Role) []Role { return r }

func from(s ...Status) []Status { return s }

// approvalHead is the submit/approve/reject prelude shared by every type.
func approvalHead(approved Status) []Transition {
	return []Transition{
		{From: from(StatusDraft), Action: ActionSubmitForApproval, To: StatusPendingApproval, Roles: roles(RoleCreator, RoleAdmin), Remarks: RemarksNone},
		{From: from(StatusPendingApproval), Action: ActionApprove, To: approved, Roles: roles(RoleApprover), Remarks: RemarksOptional, Approval: true},
		{From: from(StatusPendingApproval), Action: ActionReject, To: StatusDraft, Roles: roles(RoleApprover), Remarks: RemarksMandatory, Approval: true},
	}
}

func cancelAnyNonTerminal() Transition {
	return Transition{FromAnyNonTerminal: true, Action: ActionCancel, To: StatusCancelled, Roles: roles(RoleAdmin), Remarks: RemarksMandatory}
}

func closeFrom(s Status) Transition {
	return Transition{From: from(s), Action: ActionClose, To: StatusClosed, Roles: roles(RoleAdmin), Remarks: RemarksNone}
}

func PurchaseOrderLifecycle() Lifecycle {
	t := approvalHead(StatusOpen)
	t = append(t,
		Transition{From: from(StatusOpen), Action: ActionSendToVendor, To: StatusSentToVendor, Roles: roles(RoleCreator, RoleAdmin), Remarks: RemarksNone},
		Transition{From: from(StatusSentToVendor), Action: ActionReceivePartial, To: StatusPartiallyReceived, Roles: roles(RoleStores), Remarks: RemarksNone},
		Transition{From: from(StatusPartiallyReceived, StatusSentToVendor), Action: ActionReceiveFull, To: StatusFullyReceived, Roles: roles(RoleStores), Remarks: RemarksNone},
		closeFrom(StatusFullyReceived),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(PurchaseOrder),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusFullyReceived),
		Transitions:   t,
	}
}

func QuotationLifecycle() Lifecycle {
	t := approvalHead(StatusApproved)
	t = append(t,
		Transition{From: from(StatusApproved), Action: ActionSendToCustomer, To: StatusSentToCustomer, Roles: roles(RoleCreator, RoleSales, RoleAdmin), Remarks: RemarksNone},
		Transition{From: from(StatusSentToCustomer), Action: ActionAccept, To: StatusAccepted, Roles: roles(RoleSales, RoleAdmin), Remarks: RemarksOptional},
		Transition{From: from(StatusSentToCustomer), Action: ActionDecline, To: StatusDeclined, Roles: roles(RoleSales, RoleAdmin), Remarks: RemarksMandatory},
		Transition{From: from(StatusApproved, StatusSentToCustomer), Action: ActionExpire, To: StatusExpired, Roles: roles(RoleAdmin), Remarks: RemarksNone},
		closeFrom(StatusAccepted),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(Quotation),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled, StatusDeclined, StatusExpired),
		Fulfilled:     from(StatusAccepted),
		Transitions:   t,
	}
}

func SalesOrderLifecycle() Lifecycle {
	t := approvalHead(StatusConfirmed)
	t = append(t,
		Transition{From: from(StatusConfirmed), Action: ActionDispatchPartial, To: StatusPartiallyDispatched, Roles: roles(RoleStores), Remarks: RemarksNone},
		Transition{From: from(StatusConfirmed, StatusPartiallyDispatched), Action: ActionDispatchFull, To: StatusFullyDispatched, Roles: roles(RoleStores), Remarks: RemarksNone},
		closeFrom(StatusFullyDispatched),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(SalesOrder),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusFullyDispatched),
		Transitions:   t,
	}
}

func InvoiceLifecycle() Lifecycle {
	t := approvalHead(StatusIssued)
	t = append(t,
		Transition{From: from(StatusIssued), Action: ActionRecordPartialPayment, To: StatusPartiallyPaid, Roles: roles(RoleAccounts), Remarks: RemarksOptional},
		Transition{From: from(StatusIssued, StatusPartiallyPaid), Action: ActionMarkPaid, To: StatusPaid, Roles: roles(RoleAccounts), Remarks: RemarksOptional},
		closeFrom(StatusPaid),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(Invoice),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusPartiallyPaid, StatusPaid),
		Transitions:   t,
	}
}

func GRNLifecycle() Lifecycle {
	t := []Transition{
		{From: from(StatusDraft), Action: ActionSubmitForInspection, To: StatusPendingInspection, Roles: roles(RoleCreator, RoleStores, RoleAdmin), Remarks: RemarksNone},
		{From: from(StatusPendingInspection), Action: ActionAccept, To: StatusAccepted, Roles: roles(RoleQuality), Remarks: RemarksOptional, Approval: true},
		{From: from(StatusPendingInspection), Action: ActionRejectInspection, To: StatusDraft, Roles: roles(RoleQuality), Remarks: RemarksMandatory, Approval: true},
		closeFrom(StatusAccepted),
		cancelAnyNonTerminal(),
	}
	return Lifecycle{
		Name:          string(GRN),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusAccepted),
		Transitions:   t,
	}
}

func DispatchNoteLifecycle() Lifecycle {
	t := approvalHead(StatusReady)
	t = append(t,
		Transition{From: from(StatusReady), Action: ActionDispatch, To: StatusDispatched, Roles: roles(RoleStores), Remarks: RemarksNone},
		Transition{From: from(StatusDispatched), Action: ActionDeliver, To: StatusDelivered, Roles: roles(RoleStores, RoleSales), Remarks: RemarksOptional},
		closeFrom(StatusDelivered),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(DispatchNote),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusDispatched, StatusDelivered),
		Transitions:   t,
	}
}

func noteLifecycle(name DocumentType) Lifecycle {
	t := approvalHead(StatusIssued)
	t = append(t,
		Transition{From: from(StatusIssued), Action: ActionAdjust, To: StatusAdjusted, Roles: roles(RoleAccounts), Remarks: RemarksOptional},
		closeFrom(StatusAdjusted),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(name),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusAdjusted),
		Transitions:   t,
	}
}

func CreditNoteLifecycle() Lifecycle { return noteLifecycle(CreditNote) }

func DebitNoteLifecycle() Lifecycle { return noteLifecycle(DebitNote) }

func ReceiptLifecycle() Lifecycle {
	t := approvalHead(StatusConfirmed)
	t = append(t,
		Transition{From: from(StatusConfirmed), Action: ActionReconcile, To: StatusReconciled, Roles: roles(RoleAccounts), Remarks: RemarksNone},
		closeFrom(StatusReconciled),
		cancelAnyNonTerminal(),
	)
	return Lifecycle{
		Name:          string(Receipt),
		Initial:       StatusDraft,
		RevisionEntry: StatusDraft,
		Terminal:      from(StatusClosed, StatusCancelled),
		Fulfilled:     from(StatusReconciled),
		Transitions:   t,
	}
}

// BuiltinLifecycles indexes the compiled-in tables by name. Adding a document
// type means adding a table here and an entry in document_types.yml.
func BuiltinLifecycles() map[string]Lifecycle {
	all := []Lifecycle{
		QuotationLifecycle(),
		SalesOrderLifecycle(),
		PurchaseOrderLifecycle(),
		InvoiceLifecycle(),
		GRNLifecycle(),
		DispatchNoteLifecycle(),
		CreditNoteLifecycle(),
		DebitNoteLifecycle(),
		ReceiptLifecycle(),
	}
	out := make(map[string]Lifecycle, len(all))
	for _, l := range all {
		out[l.Name] = l
	}
	return out
}
