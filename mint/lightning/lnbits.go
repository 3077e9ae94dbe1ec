package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	LNBITS_URL       = "LNBITS_URL"
	LNBITS_ADMIN_KEY = "LNBITS_ADMIN_KEY"
)

// LnbitsBackend talks to an LNbits wallet's REST API, authenticated with
// the wallet's admin key rather than a macaroon.
type LnbitsBackend struct {
	url      string
	adminKey string
	client   *http.Client
}

func NewLnbitsBackend() (*LnbitsBackend, error) {
	url := os.Getenv(LNBITS_URL)
	if url == "" {
		return nil, errors.New(LNBITS_URL + " cannot be empty")
	}
	adminKey := os.Getenv(LNBITS_ADMIN_KEY)
	if adminKey == "" {
		return nil, errors.New(LNBITS_ADMIN_KEY + " cannot be empty")
	}

	return &LnbitsBackend{url: url, adminKey: adminKey, client: &http.Client{}}, nil
}

func (lb *LnbitsBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, lb.url+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("X-Api-Key", lb.adminKey)
	req.Header.Add("Content-Type", "application/json")

	return lb.client.Do(req)
}

type lnbitsCreateInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

func (lb *LnbitsBackend) CreateInvoice(amountSat uint64) (Invoice, error) {
	body := map[string]any{"out": false, "amount": amountSat, "memo": "", "expiry": InvoiceExpiryMins * 60}
	resp, err := lb.do(context.Background(), http.MethodPost, "/api/v1/payments", body)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Invoice{}, errors.New("unable to get invoice from lnbits")
	}

	var res lnbitsCreateInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Invoice{}, fmt.Errorf("error parsing response from lnbits: %v", err)
	}

	return Invoice{
		PaymentRequest: res.PaymentRequest,
		PaymentHash:    res.PaymentHash,
		Amount:         amountSat,
		Expiry:         uint64(time.Now().Add(InvoiceExpiryMins * time.Minute).Unix()),
	}, nil
}

func (lb *LnbitsBackend) IsInvoicePaid(ctx context.Context, paymentRequest string) (bool, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return false, fmt.Errorf("error decoding invoice: %v", err)
	}

	resp, err := lb.do(ctx, http.MethodGet, "/api/v1/payments/"+decoded.PaymentHash, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.New("error getting invoice status")
	}

	var res struct {
		Paid bool `json:"paid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, err
	}
	return res.Paid, nil
}

func (lb *LnbitsBackend) DecodeInvoice(paymentRequest string) (Bolt11, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return Bolt11{}, fmt.Errorf("error decoding invoice: %v", err)
	}
	return Bolt11{
		PaymentHash: decoded.PaymentHash,
		AmountMsat:  uint64(decoded.MSatoshi),
		Description: decoded.Description,
	}, nil
}

type lnbitsPayResponse struct {
	PaymentHash string `json:"payment_hash"`
}

func (lb *LnbitsBackend) PayInvoice(ctx context.Context, paymentRequest string, _ uint64) (PaymentResult, error) {
	body := map[string]any{"out": true, "bolt11": paymentRequest}
	resp, err := lb.do(ctx, http.MethodPost, "/api/v1/payments", body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error making payment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var errBody struct {
			Detail string `json:"detail"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return PaymentResult{}, fmt.Errorf("unable to make payment: %v", errBody.Detail)
	}

	var res lnbitsPayResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return PaymentResult{}, fmt.Errorf("error parsing response from lnbits: %v", err)
	}

	paymentResp, err := lb.do(ctx, http.MethodGet, "/api/v1/payments/"+res.PaymentHash, nil)
	if err != nil {
		return PaymentResult{}, err
	}
	defer paymentResp.Body.Close()

	var details struct {
		Preimage string `json:"preimage"`
		Details  struct {
			FeeMsat int64 `json:"fee"`
		} `json:"details"`
	}
	json.NewDecoder(paymentResp.Body).Decode(&details)

	return PaymentResult{
		PaymentHash:   res.PaymentHash,
		TotalFeesMsat: uint64(details.Details.FeeMsat),
		Preimage:      details.Preimage,
	}, nil
}
