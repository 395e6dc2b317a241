package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

func validInvoiceRequest() model.InvoiceRequest {
	return model.InvoiceRequest{
		Amount:     100,
		CustomerID: "cus_1",
		Draft: model.BookingDraft{
			Services:       []string{"Cleaning", "Yard Work"},
			Date:           "2024-07-11",
			Time:           "10:00",
			Hours:          2,
			People:         1,
			Description:    "Spring cleanup",
			Address:        "1 Main St",
			BringEquipment: true,
		},
	}
}

func invoiceOfType(typ model.InvoiceType) any {
	return mock.MatchedBy(func(d model.InvoiceDraft) bool {
		return d.Metadata[model.MetadataInvoiceType] == string(typ)
	})
}

func expectIssued(gw *mockGateway, id string, typ model.InvoiceType, amount int64, paymentType string) {
	gw.On("CreateInvoice", mock.Anything, invoiceOfType(typ)).
		Return(&model.Invoice{ID: id, Status: model.InvoiceStatusDraft}, nil).Once()
	gw.On("AddInvoiceItem", mock.Anything, mock.MatchedBy(func(it model.InvoiceItem) bool {
		return it.InvoiceID == id && it.Amount == amount && it.Currency == "cad"
	})).Return(nil).Once()
	gw.On("FinalizeInvoice", mock.Anything, id).
		Return(&model.Invoice{ID: id, Status: model.InvoiceStatusOpen}, nil).Once()
	gw.On("SendInvoice", mock.Anything, id).
		Return(&model.Invoice{ID: id, Status: model.InvoiceStatusOpen, HostedURL: "https://pay.example/" + id, PaymentIntentID: "pi_" + id}, nil).Once()
	gw.On("TagPaymentIntent", mock.Anything, "pi_"+id, map[string]string{
		model.MetadataInvoiceID:   id,
		model.MetadataPaymentType: paymentType,
	}).Return(nil).Once()
}

func TestCreateInvoices_IssuesDepositAndRemainder(t *testing.T) {
	repo := newStubRepo()
	gw := &mockGateway{}
	expectIssued(gw, "in_dep", model.InvoiceTypeDeposit, 5000, model.PaymentTypeDeposit)
	expectIssued(gw, "in_rem", model.InvoiceTypeRemainder, 5000, model.PaymentTypeRemaining)

	svc := newTestService(repo, gw)

	pair, err := svc.CreateInvoices(context.Background(), testUser, validInvoiceRequest())
	require.NoError(t, err)

	assert.Equal(t, "in_dep", pair.DepositInvoiceID)
	assert.Equal(t, "https://pay.example/in_dep", pair.DepositInvoiceURL)
	assert.Equal(t, "in_rem", pair.RemainderInvoiceID)
	assert.Equal(t, int64(10000), pair.TotalAmount)
	assert.Equal(t, int64(5000), pair.DepositAmount)
	assert.Equal(t, int64(5000), pair.RemainingAmount)
	gw.AssertExpectations(t)

	require.Len(t, repo.bookings, 1)
	b := repo.bookings[0]
	assert.Equal(t, "user_1", b.UserID)
	assert.Equal(t, model.InvoiceStatusOpen, b.DepositStatus)
	assert.Equal(t, model.InvoiceStatusOpen, b.RemainderStatus)
	assert.Equal(t, b.Split.TotalCents, b.Split.DepositCents+b.Split.RemainderCents)
}

func TestCreateInvoices_DraftsCarryBookingMetadata(t *testing.T) {
	gw := &mockGateway{}
	expectIssued(gw, "in_dep", model.InvoiceTypeDeposit, 5000, model.PaymentTypeDeposit)
	expectIssued(gw, "in_rem", model.InvoiceTypeRemainder, 5000, model.PaymentTypeRemaining)

	svc := newTestService(newStubRepo(), gw)

	_, err := svc.CreateInvoices(context.Background(), testUser, validInvoiceRequest())
	require.NoError(t, err)

	var drafts []model.InvoiceDraft
	var items []model.InvoiceItem
	for _, call := range gw.Calls {
		switch call.Method {
		case "CreateInvoice":
			drafts = append(drafts, call.Arguments.Get(1).(model.InvoiceDraft))
		case "AddInvoiceItem":
			items = append(items, call.Arguments.Get(1).(model.InvoiceItem))
		}
	}
	require.Len(t, drafts, 2)
	require.Len(t, items, 2)

	deposit, remainder := drafts[0], drafts[1]
	assert.Equal(t, int64(0), deposit.DaysUntilDue)
	assert.Equal(t, int64(40), remainder.DaysUntilDue)

	md := deposit.Metadata
	assert.Equal(t, `["Cleaning","Yard Work"]`, md[model.MetadataServices])
	assert.Equal(t, "Yes", md["bringEquipment"])
	assert.Equal(t, "10000", md["totalAmount"])
	assert.Equal(t, "5000", md["depositAmount"])
	assert.Equal(t, "5000", md["remainingAmount"])
	assert.Equal(t, "user_1", md[model.MetadataAppUserID])
	assert.Equal(t, "remainder", remainder.Metadata[model.MetadataInvoiceType])

	assert.Equal(t, "Deposit for Service: Cleaning, Yard Work on 2024-07-11 at 10:00", items[0].Description)
	assert.Equal(t, "Remaining balance for Service: Cleaning, Yard Work on 2024-07-11 at 10:00", items[1].Description)
}

func TestCreateInvoices_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *model.InvoiceRequest)
	}{
		{name: "nan amount", mutate: func(r *model.InvoiceRequest) { r.Amount = math.NaN() }},
		{name: "zero amount", mutate: func(r *model.InvoiceRequest) { r.Amount = 0 }},
		{name: "missing customer", mutate: func(r *model.InvoiceRequest) { r.CustomerID = " " }},
		{name: "one hour", mutate: func(r *model.InvoiceRequest) { r.Draft.Hours = 1 }},
		{name: "nobody", mutate: func(r *model.InvoiceRequest) { r.Draft.People = 0 }},
		{name: "bad date", mutate: func(r *model.InvoiceRequest) { r.Draft.Date = "July 11" }},
		{name: "long past date", mutate: func(r *model.InvoiceRequest) { r.Draft.Date = "2024-05-01" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			svc := newTestService(newStubRepo(), gw)

			req := validInvoiceRequest()
			tt.mutate(&req)

			_, err := svc.CreateInvoices(context.Background(), testUser, req)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, gw.Calls)
		})
	}
}

func TestCreateInvoices_CompensatesOnRemainderFailure(t *testing.T) {
	repo := newStubRepo()
	gw := &mockGateway{}
	expectIssued(gw, "in_dep", model.InvoiceTypeDeposit, 5000, model.PaymentTypeDeposit)

	gw.On("CreateInvoice", mock.Anything, invoiceOfType(model.InvoiceTypeRemainder)).
		Return(&model.Invoice{ID: "in_rem", Status: model.InvoiceStatusDraft}, nil).Once()
	gw.On("AddInvoiceItem", mock.Anything, mock.MatchedBy(func(it model.InvoiceItem) bool { return it.InvoiceID == "in_rem" })).
		Return(errors.New("card_declined")).Once()

	gw.On("DeleteDraftInvoice", mock.Anything, "in_rem").Return(nil).Once()
	gw.On("VoidInvoice", mock.Anything, "in_dep").Return(nil).Once()

	svc := newTestService(repo, gw)

	_, err := svc.CreateInvoices(context.Background(), testUser, validInvoiceRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card_declined")

	gw.AssertExpectations(t)
	assert.Empty(t, repo.bookings)
}

func TestCreateInvoices_VoidsBothWhenBookingWriteFails(t *testing.T) {
	repo := newStubRepo()
	repo.createBookingErr = errors.New("db down")

	gw := &mockGateway{}
	expectIssued(gw, "in_dep", model.InvoiceTypeDeposit, 5000, model.PaymentTypeDeposit)
	expectIssued(gw, "in_rem", model.InvoiceTypeRemainder, 5000, model.PaymentTypeRemaining)
	gw.On("VoidInvoice", mock.Anything, "in_rem").Return(nil).Once()
	gw.On("VoidInvoice", mock.Anything, "in_dep").Return(errors.New("already paid")).Once()

	svc := newTestService(repo, gw)

	_, err := svc.CreateInvoices(context.Background(), testUser, validInvoiceRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	gw.AssertExpectations(t)
}

func TestSagaRollback_ReverseOrderAndAggregatedErrors(t *testing.T) {
	var order []string
	var sg saga
	sg.add("first", func(ctx context.Context) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	sg.add("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})
	sg.add("third", func(ctx context.Context) error {
		order = append(order, "third")
		return errors.New("third failed")
	})

	err := sg.rollback(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Contains(t, err.Error(), "undo first: first failed")
	assert.Contains(t, err.Error(), "undo third: third failed")
}

func TestCreateInvoices_LinksCustomerFoundByEmail(t *testing.T) {
	repo := newStubRepo()
	gw := &mockGateway{}
	gw.On("FindCustomerByEmail", mock.Anything, "billing@annlee.ca").
		Return(&model.Customer{ID: "cus_legacy", Email: "billing@annlee.ca"}, nil)
	expectIssued(gw, "in_dep", model.InvoiceTypeDeposit, 5000, model.PaymentTypeDeposit)
	expectIssued(gw, "in_rem", model.InvoiceTypeRemainder, 5000, model.PaymentTypeRemaining)
	gw.On("ListOpenInvoices", mock.Anything, "cus_legacy").Return([]model.Invoice{
		{ID: "in_dep", CustomerID: "cus_legacy", AmountDue: 5000, Currency: "cad", Status: model.InvoiceStatusOpen},
		{ID: "in_rem", CustomerID: "cus_legacy", AmountDue: 5000, Currency: "cad", Status: model.InvoiceStatusOpen},
	}, nil)

	svc := newTestService(repo, gw)
	ctx := context.Background()

	found, err := svc.CheckCustomer(ctx, testUser, "billing@annlee.ca")
	require.NoError(t, err)
	require.True(t, found.IsCustomer)
	assert.Empty(t, repo.links, "a customer found by another email is not linked on lookup")

	req := validInvoiceRequest()
	req.CustomerID = *found.CustomerID
	_, err = svc.CreateInvoices(ctx, testUser, req)
	require.NoError(t, err)

	invoices, err := svc.ListUnpaidInvoices(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "in_dep", invoices[0].ID)
	gw.AssertNotCalled(t, "FindCustomerByAppUser", mock.Anything, mock.Anything)
}
