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
	STRIKE_API_KEY = "STRIKE_API_KEY"
	strikeBaseURL  = "https://api.strike.me/v1"
)

// StrikeBackend talks to the Strike API, which splits invoice creation
// into two calls: create an invoice, then request a Lightning quote for
// it. The quote's payment request is what the mint actually hands out.
type StrikeBackend struct {
	apiKey string
	client *http.Client
}

func NewStrikeBackend() (*StrikeBackend, error) {
	apiKey := os.Getenv(STRIKE_API_KEY)
	if apiKey == "" {
		return nil, errors.New(STRIKE_API_KEY + " cannot be empty")
	}
	return &StrikeBackend{apiKey: apiKey, client: &http.Client{}}, nil
}

func (sb *StrikeBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, strikeBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+sb.apiKey)
	req.Header.Add("Content-Type", "application/json")

	return sb.client.Do(req)
}

type strikeInvoiceResponse struct {
	InvoiceId string `json:"invoiceId"`
}

type strikeQuoteResponse struct {
	QuoteId string `json:"quoteId"`
	Lnd     struct {
		PaymentRequest string `json:"paymentRequest"`
	} `json:"lnInvoice"`
}

func (sb *StrikeBackend) CreateInvoice(amountSat uint64) (Invoice, error) {
	btcAmount := fmt.Sprintf("%.8f", float64(amountSat)/1e8)
	invBody := map[string]any{"amount": map[string]any{"amount": btcAmount, "currency": "BTC"}}
	resp, err := sb.do(context.Background(), http.MethodPost, "/invoices", invBody)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Invoice{}, errors.New("unable to create invoice with strike")
	}

	var invRes strikeInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invRes); err != nil {
		return Invoice{}, fmt.Errorf("error parsing response from strike: %v", err)
	}

	quoteResp, err := sb.do(context.Background(), http.MethodPost, "/invoices/"+invRes.InvoiceId+"/quote", nil)
	if err != nil {
		return Invoice{}, err
	}
	defer quoteResp.Body.Close()
	if quoteResp.StatusCode != http.StatusOK && quoteResp.StatusCode != http.StatusCreated {
		return Invoice{}, errors.New("unable to get quote from strike")
	}

	var quoteRes strikeQuoteResponse
	if err := json.NewDecoder(quoteResp.Body).Decode(&quoteRes); err != nil {
		return Invoice{}, fmt.Errorf("error parsing quote response from strike: %v", err)
	}

	decoded, err := decodepay.Decodepay(quoteRes.Lnd.PaymentRequest)
	if err != nil {
		return Invoice{}, fmt.Errorf("error decoding invoice from strike: %v", err)
	}

	return Invoice{
		PaymentRequest: quoteRes.Lnd.PaymentRequest,
		PaymentHash:    decoded.PaymentHash,
		Amount:         amountSat,
		Expiry:         uint64(time.Now().Add(InvoiceExpiryMins * time.Minute).Unix()),
	}, nil
}

func (sb *StrikeBackend) IsInvoicePaid(ctx context.Context, paymentRequest string) (bool, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return false, fmt.Errorf("error decoding invoice: %v", err)
	}

	resp, err := sb.do(ctx, http.MethodGet, "/invoices/"+decoded.PaymentHash, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.New("error getting invoice status")
	}

	var res struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, err
	}
	return res.State == "PAID", nil
}

func (sb *StrikeBackend) DecodeInvoice(paymentRequest string) (Bolt11, error) {
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

func (sb *StrikeBackend) PayInvoice(ctx context.Context, paymentRequest string, _ uint64) (PaymentResult, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	body := map[string]any{"lnInvoice": paymentRequest, "sourceCurrency": "BTC"}
	resp, err := sb.do(ctx, http.MethodPost, "/payment-quotes/lightning", body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error making payment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PaymentResult{}, errors.New("unable to make payment with strike")
	}

	var quote struct {
		PaymentQuoteId string `json:"paymentQuoteId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return PaymentResult{}, fmt.Errorf("error parsing response from strike: %v", err)
	}

	execResp, err := sb.do(ctx, http.MethodPatch, "/payment-quotes/"+quote.PaymentQuoteId+"/execute", nil)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error executing payment: %v", err)
	}
	defer execResp.Body.Close()
	if execResp.StatusCode != http.StatusOK {
		return PaymentResult{}, errors.New("strike payment execution failed")
	}

	var execRes struct {
		State           string `json:"state"`
		LightningNetworkFeeSat string `json:"lightningNetworkFeeSat"`
	}
	json.NewDecoder(execResp.Body).Decode(&execRes)
	if execRes.State != "COMPLETED" {
		return PaymentResult{}, errors.New("strike payment did not complete")
	}

	return PaymentResult{
		PaymentHash: decoded.PaymentHash,
		Preimage:    "",
	}, nil
}
