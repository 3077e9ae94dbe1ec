package lightning

import (
	"context"
	"testing"
)

func TestFakeBackendCreateAndPayInvoice(t *testing.T) {
	fb := NewFakeBackend()

	inv, err := fb.CreateInvoice(1000)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.Amount != 1000 {
		t.Fatalf("expected amount 1000, got %d", inv.Amount)
	}

	paid, err := fb.IsInvoicePaid(context.Background(), inv.PaymentRequest)
	if err != nil {
		t.Fatalf("IsInvoicePaid: %v", err)
	}
	if paid {
		t.Fatal("expected invoice to not be paid yet")
	}

	fb.MarkPaid(inv.PaymentRequest)

	paid, err = fb.IsInvoicePaid(context.Background(), inv.PaymentRequest)
	if err != nil {
		t.Fatalf("IsInvoicePaid: %v", err)
	}
	if !paid {
		t.Fatal("expected invoice to be paid")
	}
}

func TestFakeBackendDecodeInvoice(t *testing.T) {
	fb := NewFakeBackend()

	inv, err := fb.CreateInvoice(500)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	decoded, err := fb.DecodeInvoice(inv.PaymentRequest)
	if err != nil {
		t.Fatalf("DecodeInvoice: %v", err)
	}
	if decoded.AmountMsat != 500*1000 {
		t.Fatalf("expected amount msat %d, got %d", 500*1000, decoded.AmountMsat)
	}
	if decoded.PaymentHash != inv.PaymentHash {
		t.Fatalf("expected payment hash %s, got %s", inv.PaymentHash, decoded.PaymentHash)
	}
}

func TestFakeBackendPayInvoiceFailure(t *testing.T) {
	fb := NewFakeBackend()

	req, _, _, err := CreateFakeInvoice(1000, true)
	if err != nil {
		t.Fatalf("CreateFakeInvoice: %v", err)
	}

	if _, err := fb.PayInvoice(context.Background(), req, 0); err == nil {
		t.Fatal("expected payment to fail")
	}
}

func TestFakeBackendPayInvoiceSuccess(t *testing.T) {
	fb := NewFakeBackend()

	req, _, hash, err := CreateFakeInvoice(1000, false)
	if err != nil {
		t.Fatalf("CreateFakeInvoice: %v", err)
	}

	result, err := fb.PayInvoice(context.Background(), req, 0)
	if err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}
	if result.PaymentHash != hash {
		t.Fatalf("expected payment hash %s, got %s", hash, result.PaymentHash)
	}
	if result.Preimage != FakePreimage {
		t.Fatalf("expected preimage %s, got %s", FakePreimage, result.Preimage)
	}
}
