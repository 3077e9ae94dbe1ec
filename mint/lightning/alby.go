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
	ALBY_API_KEY = "ALBY_API_KEY"
	albyBaseURL  = "https://api.getalby.com"
)

// AlbyBackend talks to the Alby wallet API, authenticated with a bearer
// OAuth access token.
type AlbyBackend struct {
	apiKey string
	client *http.Client
}

func NewAlbyBackend() (*AlbyBackend, error) {
	apiKey := os.Getenv(ALBY_API_KEY)
	if apiKey == "" {
		return nil, errors.New(ALBY_API_KEY + " cannot be empty")
	}
	return &AlbyBackend{apiKey: apiKey, client: &http.Client{}}, nil
}

func (ab *AlbyBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, albyBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+ab.apiKey)
	req.Header.Add("Content-Type", "application/json")

	return ab.client.Do(req)
}

type albyInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

func (ab *AlbyBackend) CreateInvoice(amountSat uint64) (Invoice, error) {
	body := map[string]any{"amount": amountSat, "expiry": InvoiceExpiryMins * 60}
	resp, err := ab.do(context.Background(), http.MethodPost, "/invoices", body)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Invoice{}, errors.New("unable to get invoice from alby")
	}

	var res albyInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Invoice{}, fmt.Errorf("error parsing response from alby: %v", err)
	}

	return Invoice{
		PaymentRequest: res.PaymentRequest,
		PaymentHash:    res.PaymentHash,
		Amount:         amountSat,
		Expiry:         uint64(time.Now().Add(InvoiceExpiryMins * time.Minute).Unix()),
	}, nil
}

func (ab *AlbyBackend) IsInvoicePaid(ctx context.Context, paymentRequest string) (bool, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return false, fmt.Errorf("error decoding invoice: %v", err)
	}

	resp, err := ab.do(ctx, http.MethodGet, "/invoices/"+decoded.PaymentHash, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.New("error getting invoice status")
	}

	var res struct {
		Settled bool `json:"settled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, err
	}
	return res.Settled, nil
}

func (ab *AlbyBackend) DecodeInvoice(paymentRequest string) (Bolt11, error) {
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

type albyPayResponse struct {
	PaymentHash   string `json:"payment_hash"`
	Preimage      string `json:"payment_preimage"`
	FeeMsat       int64  `json:"fee_msat"`
}

func (ab *AlbyBackend) PayInvoice(ctx context.Context, paymentRequest string, _ uint64) (PaymentResult, error) {
	body := map[string]any{"invoice": paymentRequest}
	resp, err := ab.do(ctx, http.MethodPost, "/payments/bolt11", body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error making payment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PaymentResult{}, errors.New("unable to make payment with alby")
	}

	var res albyPayResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return PaymentResult{}, fmt.Errorf("error parsing response from alby: %v", err)
	}

	return PaymentResult{
		PaymentHash:   res.PaymentHash,
		TotalFeesMsat: uint64(res.FeeMsat),
		Preimage:      res.Preimage,
	}, nil
}
