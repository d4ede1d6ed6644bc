package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// HTTPClient talks to the processor's REST API with bearer authentication.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient builds a processor client for the given API base URL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createAccountRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type createAccountResponse struct {
	Data struct {
		AccountNumber string `json:"account_number"`
		Bank          string `json:"bank"`
	} `json:"data"`
}

type transferRequest struct {
	Amount        string `json:"amount"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	Narration     string `json:"narration"`
	Reference     string `json:"reference"`
}

type transferResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

// CreateAccount provisions a virtual account at the processor.
func (c *HTTPClient) CreateAccount(ctx context.Context, input CreateAccountInput) (CreatedAccount, error) {
	var resp createAccountResponse
	err := c.post(ctx, "/v1/accounts/generate", createAccountRequest{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
		Email:     input.Email,
	}, &resp)
	if err != nil {
		return CreatedAccount{}, err
	}
	if resp.Data.AccountNumber == "" {
		return CreatedAccount{}, fmt.Errorf("%w: empty account number", ErrUnavailable)
	}
	return CreatedAccount{AccountNumber: resp.Data.AccountNumber, BankName: resp.Data.Bank}, nil
}

// TransferFunds initiates an outbound transfer keyed by the reference.
func (c *HTTPClient) TransferFunds(ctx context.Context, input TransferInput) (TransferResult, error) {
	var resp transferResponse
	err := c.post(ctx, "/v1/transfers/create", transferRequest{
		Amount:        input.Amount.String(),
		AccountNumber: input.AccountNumber,
		BankName:      input.BankName,
		Narration:     input.Narration,
		Reference:     input.Reference,
	}, &resp)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Status: resp.Data.Status}, nil
}

// VerifyTransfer fetches the processor-side status of a transfer.
func (c *HTTPClient) VerifyTransfer(ctx context.Context, reference string) (TransferResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transfers/verify/"+reference, nil)
	if err != nil {
		return TransferResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp transferResponse
	if err := c.do(req, &resp); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Status: resp.Data.Status}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("gateway rejected request",
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
