package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

type exportService struct {
	store Store
}

func NewExportService(store Store) ExportService {
	return &exportService{store: store}
}

// ExportCarrierSettlements renders the carrier's invoices and ledger rows as an
// XLSX workbook with one sheet each.
func (s *exportService) ExportCarrierSettlements(ctx context.Context, carrierID int64) ([]byte, error) {
	repos := s.store.Repositories()
	invoices, err := repos.Invoices.ListByCarrier(ctx, carrierID)
	if err != nil {
		return nil, err
	}
	payments, err := repos.Payments.ListByCarrier(ctx, carrierID)
	if err != nil {
		return nil, err
	}
	logger.Debug("Exporting settlements", "carrierID", carrierID, "invoices", len(invoices), "payments", len(payments))
	return buildSettlementXLSX(invoices, payments)
}

func buildSettlementXLSX(invoices []domain.Invoice, payments []domain.Payment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	invoiceSheet := "invoices"
	paymentSheet := "payments"
	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(paymentSheet); err != nil {
		return nil, err
	}

	header := []any{"Invoice", "Settlement", "Description", "Status", "Amount Due", "Amount Paid", "Due Date", "Paid Date"}
	if err := f.SetSheetRow(invoiceSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, inv := range invoices {
		paid := ""
		if inv.PaidDate != nil {
			paid = inv.PaidDate.Format("2006-01-02")
		}
		row := []any{
			inv.UID.String(),
			inv.LoadSettlementID,
			inv.Description,
			string(inv.Status),
			centsToDollars(inv.AmountDueInCents),
			centsToDollars(inv.AmountPaidInCents),
			inv.DueDate.Format("2006-01-02"),
			paid,
		}
		if err := f.SetSheetRow(invoiceSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	header = []any{"Settlement", "Type", "Amount", "Reference", "Created"}
	if err := f.SetSheetRow(paymentSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, p := range payments {
		row := []any{
			p.LoadSettlementID,
			string(p.Type),
			centsToDollars(p.AmountInCents),
			p.ExternalRefID,
			p.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(paymentSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func centsToDollars(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
