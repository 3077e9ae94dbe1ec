package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	LND_HOST          = "LND_REST_HOST"
	LND_CERT_PATH     = "LND_CERT_PATH"
	LND_MACAROON_PATH = "LND_MACAROON_PATH"
)

const InvoiceExpiryMins = 10

// LndBackend talks to an lnd node over its REST API, authenticating with
// a macaroon rather than the gRPC+TLS client lnd also exposes.
type LndBackend struct {
	host     string
	client   *http.Client
	macaroon string // hex encoded
}

func NewLndBackend() (*LndBackend, error) {
	host := os.Getenv(LND_HOST)
	if host == "" {
		return nil, errors.New(LND_HOST + " cannot be empty")
	}
	certPath := os.Getenv(LND_CERT_PATH)
	if certPath == "" {
		return nil, errors.New(LND_CERT_PATH + " cannot be empty")
	}
	macaroonPath := os.Getenv(LND_MACAROON_PATH)
	if macaroonPath == "" {
		return nil, errors.New(LND_MACAROON_PATH + " cannot be empty")
	}

	macaroonBytes, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("error reading macaroon: %v", err)
	}
	macaroonHex := hex.EncodeToString(macaroonBytes)
	client, err := httpClient(certPath)
	if err != nil {
		return nil, fmt.Errorf("error creating lnd client: %v", err)
	}

	return &LndBackend{host: host, client: client, macaroon: macaroonHex}, nil
}

func httpClient(tlsCert string) (*http.Client, error) {
	cert, err := os.ReadFile(tlsCert)
	if err != nil {
		return nil, fmt.Errorf("error reading cert: %v", err)
	}
	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(cert)

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: certPool,
			},
		},
	}, nil
}

func (lnd *LndBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, lnd.host+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Grpc-Metadata-macaroon", lnd.macaroon)

	return lnd.client.Do(req)
}

type addInvoiceResponse struct {
	Hash           string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
}

func (lnd *LndBackend) CreateInvoice(amountSat uint64) (Invoice, error) {
	body := map[string]any{"value": amountSat, "expiry": InvoiceExpiryMins * 60}
	resp, err := lnd.do(context.Background(), http.MethodPost, "/v1/invoices", body)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Invoice{}, errors.New("unable to get invoice from lnd")
	}

	var res addInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Invoice{}, fmt.Errorf("error parsing response from lnd: %v", err)
	}

	hashBytes, err := base64.StdEncoding.DecodeString(res.Hash)
	if err != nil {
		return Invoice{}, fmt.Errorf("error decoding hash from lnd: %v", err)
	}

	return Invoice{
		PaymentRequest: res.PaymentRequest,
		PaymentHash:    hex.EncodeToString(hashBytes),
		Amount:         amountSat,
		Expiry:         uint64(time.Now().Add(InvoiceExpiryMins * time.Minute).Unix()),
	}, nil
}

func (lnd *LndBackend) IsInvoicePaid(ctx context.Context, paymentRequest string) (bool, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return false, fmt.Errorf("error decoding invoice: %v", err)
	}

	hashBytes, err := hex.DecodeString(decoded.PaymentHash)
	if err != nil {
		return false, errors.New("invalid payment hash")
	}
	b64Hash := base64.URLEncoding.EncodeToString(hashBytes)

	resp, err := lnd.do(ctx, http.MethodGet, "/v2/invoices/lookup?payment_hash="+b64Hash, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.New("error getting invoice status")
	}

	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, err
	}

	return res["state"] == "SETTLED", nil
}

func (lnd *LndBackend) DecodeInvoice(paymentRequest string) (Bolt11, error) {
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

type sendPaymentResponse struct {
	PaymentError    string `json:"payment_error"`
	PaymentPreimage string `json:"payment_preimage"`
	PaymentRoute    struct {
		TotalFeesMsat int64 `json:"total_fees_msat,string"`
	} `json:"payment_route"`
}

func (lnd *LndBackend) PayInvoice(ctx context.Context, paymentRequest string, feeReserveMsat uint64) (PaymentResult, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	body := map[string]any{
		"payment_request": paymentRequest,
		"fee_limit_msat":  feeReserveMsat,
	}
	resp, err := lnd.do(ctx, http.MethodPost, "/v1/channels/transactions", body)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error making payment: %v", err)
	}
	defer resp.Body.Close()

	var res sendPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return PaymentResult{}, fmt.Errorf("error parsing response from lnd: %v", err)
	}
	if len(res.PaymentError) > 0 {
		return PaymentResult{}, fmt.Errorf("unable to make payment: %v", res.PaymentError)
	}

	return PaymentResult{
		PaymentHash:   decoded.PaymentHash,
		TotalFeesMsat: uint64(res.PaymentRoute.TotalFeesMsat),
		Preimage:      res.PaymentPreimage,
	}, nil
}
