package credit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

const serviceName = "oatfi"

const defaultContactEmail = "none_provided@nauvus.com"

type OatfiConfig struct {
	BaseURL   string
	APIKey    string
	ProductID string
	Timeout   time.Duration
}

type oatfiClient struct {
	baseURL   string
	auth      string
	productID string
	client    *http.Client
}

func NewOatfiClient(cfg OatfiConfig) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("oatfi: empty base url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &oatfiClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		auth:      "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey)),
		productID: cfg.ProductID,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type businessPayload struct {
	Name             string            `json:"name"`
	ExternalID       string            `json:"externalId"`
	Metadata         map[string]string `json:"metadata"`
	ContactEmail     string            `json:"contactEmail"`
	ContactFirstName string            `json:"contactFirstName"`
	ContactLastName  string            `json:"contactLastName"`
	StreetAddress    string            `json:"streetAddress"`
	City             string            `json:"city"`
	State            string            `json:"state"`
	PostalCode       string            `json:"postalCode"`
	TaxID            string            `json:"taxId"`
	PaymentSettings  []paymentSetting  `json:"paymentSettings"`
}

type paymentSetting struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type invoicePayload struct {
	ExternalID             string `json:"externalId"`
	Amount                 int64  `json:"amount,omitempty"`
	Description            string `json:"description,omitempty"`
	InvoiceApprovedByPayor bool   `json:"invoiceApprovedByPayor"`
	PayorExternalID        string `json:"payorExternalId,omitempty"`
	PayeeExternalID        string `json:"payeeExternalId,omitempty"`
	DueDate                int64  `json:"dueDate,omitempty"`
	InvoiceDate            int64  `json:"invoiceDate,omitempty"`
	PaymentDate            *int64 `json:"paymentDate,omitempty"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// SaveBusiness updates the business when the provider already knows it and
// creates it otherwise.
func (c *oatfiClient) SaveBusiness(ctx context.Context, b Business) error {
	logger.ExternalServiceCall(serviceName, "SaveBusiness", "externalID", b.ExternalID)

	payload := businessPayload{
		Name:             b.Name,
		ExternalID:       b.ExternalID,
		Metadata:         map[string]string{"mcNumber": b.MCNumber},
		ContactEmail:     orDefault(b.Email, defaultContactEmail),
		ContactFirstName: orDefault(b.ContactFirstName, "None"),
		ContactLastName:  orDefault(b.ContactLastName, "None"),
		StreetAddress:    orDefault(b.Street, "None"),
		City:             orDefault(b.City, "None"),
		State:            orDefault(b.State, "GA"),
		PostalCode:       orDefault(b.Zip, "00000"),
		TaxID:            orDefault(b.TaxID, "000000000"),
		PaymentSettings: []paymentSetting{
			{Type: "STRIPE", Data: map[string]string{"account_id": b.PayoutAccountID}},
		},
	}

	err := c.doJSON(ctx, http.MethodGet, "/business/"+b.ExternalID, nil, nil)
	switch {
	case err == nil:
		err = c.doJSON(ctx, http.MethodPut, "/business", payload, nil)
	case errors.Is(err, domain.ErrNotFound):
		err = c.doJSON(ctx, http.MethodPost, "/business", map[string]any{"businesses": []businessPayload{payload}}, nil)
	}

	logger.ExternalServiceResult(serviceName, "SaveBusiness", err, "externalID", b.ExternalID)
	return err
}

func (c *oatfiClient) GetPreapproval(ctx context.Context, businessID string) (bool, error) {
	var resp struct {
		Preapproved bool `json:"preapproved"`
	}
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/business/%s/preapproval/%s", businessID, c.productID), nil, &resp)
	if err != nil {
		logger.ExternalServiceResult(serviceName, "GetPreapproval", err, "businessID", businessID)
		return false, err
	}
	logger.Debug("Preapproval retrieved", "businessID", businessID, "preapproved", resp.Preapproved)
	return resp.Preapproved, nil
}

func (c *oatfiClient) GetCreditLimit(ctx context.Context, businessID string) (int64, error) {
	var resp struct {
		CreditLimit int64 `json:"creditLimit"`
	}
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/business/%s/underwrite/%s", businessID, c.productID), nil, &resp)
	if err != nil {
		logger.ExternalServiceResult(serviceName, "GetCreditLimit", err, "businessID", businessID)
		return 0, err
	}
	return resp.CreditLimit, nil
}

func (c *oatfiClient) RequestLoanOffer(ctx context.Context, carrierID, invoiceExternalID string) (*LoanOffer, error) {
	logger.ExternalServiceCall(serviceName, "RequestLoanOffer", "carrierID", carrierID, "invoice", invoiceExternalID)

	body := map[string]string{
		"productUUID":        c.productID,
		"businessExternalId": carrierID,
	}
	var resp struct {
		Invoices []struct {
			ExternalID      string `json:"externalId"`
			PrincipalAmount int64  `json:"principalAmount"`
			FeeAmount       int64  `json:"feeAmount"`
			TermsLink       string `json:"termsLink"`
		} `json:"invoices"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/loan/offer", body, &resp); err != nil {
		logger.ExternalServiceResult(serviceName, "RequestLoanOffer", err)
		return nil, err
	}
	for _, inv := range resp.Invoices {
		if inv.ExternalID == invoiceExternalID {
			return &LoanOffer{
				InvoiceExternalID: inv.ExternalID,
				PrincipalInCents:  inv.PrincipalAmount,
				FeeInCents:        inv.FeeAmount,
				TermsLink:         inv.TermsLink,
			}, nil
		}
	}
	return nil, nil
}

func (c *oatfiClient) FundLoan(ctx context.Context, carrierID, invoiceExternalID string, amountInCents int64) (*Funding, error) {
	logger.ExternalServiceCall(serviceName, "FundLoan", "invoice", invoiceExternalID, "amount", amountInCents)

	body := map[string]any{
		"productUUID":        c.productID,
		"amount":             amountInCents,
		"businessExternalId": carrierID,
		"invoiceExternalId":  invoiceExternalID,
	}
	var resp struct {
		LoanID        string `json:"loanId"`
		TransactionID string `json:"transactionId"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/loan/funding", body, &resp)
	logger.ExternalServiceResult(serviceName, "FundLoan", err, "loanID", resp.LoanID)
	if err != nil {
		return nil, err
	}
	return &Funding{LoanID: resp.LoanID, TransactionID: resp.TransactionID}, nil
}

func (c *oatfiClient) RecordRepayment(ctx context.Context, carrierID, invoiceExternalID, transferID string, amountInCents int64) error {
	body := map[string]any{
		"productUUID":        c.productID,
		"businessExternalId": carrierID,
		"invoiceExternalId":  invoiceExternalID,
		"transferId":         transferID,
		"amount":             amountInCents,
	}
	err := c.doJSON(ctx, http.MethodPost, "/payment", body, nil)
	logger.ExternalServiceResult(serviceName, "RecordRepayment", err, "transferID", transferID)
	return err
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// SendInvoice registers the invoice, or updates it when the provider already has it.
func (c *oatfiClient) SendInvoice(ctx context.Context, inv Invoice) error {
	logger.ExternalServiceCall(serviceName, "SendInvoice", "invoice", inv.ExternalID)

	payload := invoicePayload{
		ExternalID:             inv.ExternalID,
		Amount:                 inv.AmountInCents,
		Description:            inv.Description,
		InvoiceApprovedByPayor: true,
		PayorExternalID:        inv.PayorExternalID,
		PayeeExternalID:        inv.PayeeExternalID,
		DueDate:                millis(inv.DueDate),
		InvoiceDate:            millis(inv.InvoiceDate),
	}
	if inv.PaymentDate != nil {
		ms := millis(*inv.PaymentDate)
		payload.PaymentDate = &ms
	}

	err := c.doJSON(ctx, http.MethodGet, "/invoice/"+inv.ExternalID+"/", nil, nil)
	switch {
	case err == nil:
		err = c.doJSON(ctx, http.MethodPut, "/invoice", payload, nil)
	case errors.Is(err, domain.ErrNotFound):
		err = c.doJSON(ctx, http.MethodPost, "/invoice", map[string]any{"invoices": []invoicePayload{payload}}, nil)
	}

	logger.ExternalServiceResult(serviceName, "SendInvoice", err, "invoice", inv.ExternalID)
	return err
}

func (c *oatfiClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: oatfi %s %s: %v", domain.ErrProviderUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("oatfi %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: oatfi %s %s: http %d", domain.ErrProviderUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: oatfi %s %s: http %d: %s", domain.ErrProviderRejected, method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: oatfi %s: decode: %v", domain.ErrProviderUnavailable, path, err)
	}
	return nil
}
