package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/storage"
)

const documentLinkTTL = 7 * 24 * time.Hour

type invoiceDocumentService struct {
	store Store
	files storage.StorageInterface
	email EmailService
}

func NewInvoiceDocumentService(store Store, files storage.StorageInterface, email EmailService) InvoiceDocumentService {
	return &invoiceDocumentService{store: store, files: files, email: email}
}

func formatCents(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

func (s *invoiceDocumentService) Render(ctx context.Context, invoice *domain.Invoice) ([]byte, error) {
	repos := s.store.Repositories()
	broker, err := repos.Parties.GetBroker(ctx, invoice.BrokerID)
	if err != nil {
		return nil, err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return nil, err
	}
	return renderInvoicePDF(invoice, broker, carrier)
}

func renderInvoicePDF(invoice *domain.Invoice, broker *domain.Broker, carrier *domain.Carrier) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetFont("Arial", "B", 16)
	pdf.AddPage()

	pdf.Cell(0, 10, "INVOICE")
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", invoice.UID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Issued: %s", invoice.CreatedAt.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Due: %s", invoice.DueDate.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(95, 6, "Bill to", "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Carrier", "", 0, "L", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	billTo := []string{broker.Name, "MC " + broker.MCNumber, broker.Street,
		fmt.Sprintf("%s, %s %s", broker.City, broker.State, broker.ZipCode)}
	payee := []string{carrier.OrganizationName, "MC " + carrier.MCNumber, carrier.Street,
		fmt.Sprintf("%s, %s %s", carrier.City, carrier.State, carrier.ZipCode)}
	for i := range billTo {
		pdf.CellFormat(95, 5, billTo[i], "", 0, "L", false, 0, "")
		pdf.CellFormat(95, 5, payee[i], "", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(140, 7, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, "Amount", "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(140, 7, invoice.Description, "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, formatCents(invoice.AmountDueInCents), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(140, 7, "Total due", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 7, formatCents(invoice.AmountDueInCents), "1", 0, "R", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, "Pay online: "+invoice.PaymentLinkURL, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Publish renders the invoice, stores it and emails it to the broker together
// with links to the delivery documents.
func (s *invoiceDocumentService) Publish(ctx context.Context, invoiceID int64) error {
	repos := s.store.Repositories()
	invoice, err := repos.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	settlement, err := repos.Settlements.GetByID(ctx, invoice.LoadSettlementID)
	if err != nil {
		return err
	}
	load, err := repos.Loads.GetByID(ctx, settlement.LoadID)
	if err != nil {
		return err
	}
	broker, err := repos.Parties.GetBroker(ctx, invoice.BrokerID)
	if err != nil {
		return err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return err
	}

	pdf, err := renderInvoicePDF(invoice, broker, carrier)
	if err != nil {
		return fmt.Errorf("render invoice %d: %w", invoiceID, err)
	}

	key := fmt.Sprintf("invoices/%s.pdf", invoice.UID)
	if err := s.files.PutObject(ctx, key, "application/pdf", pdf); err != nil {
		return fmt.Errorf("store invoice %d: %w", invoiceID, err)
	}
	if err := repos.Invoices.SetDocumentKey(ctx, invoiceID, key); err != nil {
		return err
	}
	invoice.DocumentKey = key

	downloadURL, err := s.files.GeneratePresignedDownloadURL(ctx, key, documentLinkTTL)
	if err != nil {
		logger.Warn("Failed to presign invoice download", "invoiceID", invoiceID, "error", err)
	}

	docs, err := repos.Loads.ListDeliveryDocuments(ctx, load.ID)
	if err != nil {
		return err
	}
	links := make([]string, 0, len(docs))
	for _, doc := range docs {
		url, err := s.files.GeneratePresignedDownloadURL(ctx, doc.StorageKey, documentLinkTTL)
		if err != nil {
			logger.Warn("Failed to presign delivery document", "documentID", doc.ID, "error", err)
			continue
		}
		links = append(links, url)
	}

	to := load.InvoiceEmail
	if to == "" {
		to = broker.Email
	}
	if to == "" {
		return domain.NewValidationError("invoice_email", "load and broker have no email address")
	}

	return s.email.SendInvoice(ctx, InvoiceEmail{
		To:            to,
		ToName:        broker.Name,
		Invoice:       invoice,
		PDF:           pdf,
		DownloadURL:   downloadURL,
		DocumentLinks: links,
	})
}
