// Package api exposes the ingestion pipeline over HTTP: statement upload
// with preview, batch commit, and read access to classifications and
// committed transactions.
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"statement-ingestion-service/internal/commit"
	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/internal/pipeline"
	"statement-ingestion-service/pkg/errors"
	"statement-ingestion-service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// TransactionLister reads back committed transactions
type TransactionLister interface {
	ListByAccount(ctx context.Context, accountID int64) ([]*models.AccountTransaction, error)
}

// Handler wires the ingestion components into HTTP endpoints
type Handler struct {
	pipeline *pipeline.Pipeline
	writer   *commit.Writer
	registry patterns.Registry
	lister   TransactionLister
	logger   logger.Logger
}

// NewHandler creates the HTTP handler over the given components. The lister
// may be nil, in which case the transaction listing endpoint returns 404.
func NewHandler(p *pipeline.Pipeline, w *commit.Writer, registry patterns.Registry, lister TransactionLister) *Handler {
	return &Handler{
		pipeline: p,
		writer:   w,
		registry: registry,
		lister:   lister,
		logger:   logger.GetGlobalLogger().WithComponent("api"),
	}
}

// Register mounts the API routes on the fiber app
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Get("/classifications", h.ListClassifications)
	v1.Post("/accounts/:accountID/statements/preview", h.PreviewStatement)
	v1.Post("/accounts/:accountID/statements/commit", h.CommitStatement)
	if h.lister != nil {
		v1.Get("/accounts/:accountID/transactions", h.ListTransactions)
	}
}

// Health reports service liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListClassifications returns the classifications available for tagging
func (h *Handler) ListClassifications(c *fiber.Ctx) error {
	classifications, err := h.registry.ListClassifications(c.Context())
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"classifications": classifications})
}

// PreviewStatement accepts a multipart statement upload and returns the
// reviewable preview list. Nothing is persisted.
func (h *Handler) PreviewStatement(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	fileHeader, err := c.FormFile("statement")
	if err != nil {
		return badRequest(c, "multipart field 'statement' is required")
	}

	format := parsers.DetectFormat(fileHeader.Filename)
	if raw := c.Query("format"); raw != "" {
		format = parsers.Format(strings.ToLower(raw))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.errorResponse(c, errors.FileError(errors.CodeFileCorrupted, fileHeader.Filename, err))
	}
	defer file.Close()

	h.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"filename":   fileHeader.Filename,
		"size":       fileHeader.Size,
	}).Info("Statement upload received")

	result, err := h.pipeline.ParseAndPreview(c.Context(), accountID, file, format)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(result)
}

// commitRowRequest is the wire form of one edited preview row. Dates are
// YYYY-MM-DD strings and amounts decimal strings, matching the preview
// rendering the client received.
type commitRowRequest struct {
	RowIndex          int     `json:"rowIndex"`
	TransactionDate   string  `json:"transactionDate"`
	ValueDate         string  `json:"valueDate"`
	Description       string  `json:"description"`
	Debit             string  `json:"debit"`
	Credit            string  `json:"credit"`
	Balance           string  `json:"balance"`
	Type              string  `json:"type"`
	TellerNo          *int64  `json:"tellerNo,omitempty"`
	ChequeNo          *int64  `json:"chequeNo,omitempty"`
	ClassificationID  *int64  `json:"classificationId,omitempty"`
	IsReversal        bool    `json:"isReversal"`
	ReversalPairIndex *int    `json:"reversalPairIndex,omitempty"`
	Reference         string  `json:"extractedReference,omitempty"`
}

type commitRequest struct {
	UploaderID int64               `json:"uploaderId"`
	Rows       []*commitRowRequest `json:"rows"`
}

type commitResponse struct {
	AccountID int64                        `json:"accountId"`
	Committed int                          `json:"committed"`
	Records   []*models.AccountTransaction `json:"records"`
}

// CommitStatement persists a reviewed preview batch. The whole batch is
// accepted or rejected; a rejection response lists every offending row.
func (h *Handler) CommitStatement(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req commitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if req.UploaderID == 0 {
		return badRequest(c, "uploaderId is required")
	}

	previews, convErrs := previewsFromRequest(req.Rows)
	if len(convErrs) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":     "batch contains unparseable rows",
			"rowErrors": convErrs,
		})
	}

	records, err := h.writer.Commit(c.Context(), accountID, req.UploaderID, previews)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(&commitResponse{
		AccountID: accountID,
		Committed: len(records),
		Records:   records,
	})
}

// ListTransactions returns an account's committed transactions
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	transactions, err := h.lister.ListByAccount(c.Context(), accountID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"accountId":    accountID,
		"transactions": transactions,
	})
}

// previewsFromRequest converts wire rows back into previews. Conversion
// failures are collected per row; semantic validation happens in the commit
// writer.
func previewsFromRequest(rows []*commitRowRequest) ([]*models.TransactionPreview, []*commit.RowError) {
	var rowErrors []*commit.RowError
	previews := make([]*models.TransactionPreview, 0, len(rows))

	for _, row := range rows {
		preview := &models.TransactionPreview{
			RawRow: models.RawRow{
				RowIndex:           row.RowIndex,
				Description:        row.Description,
				TellerNo:           row.TellerNo,
				ChequeNo:           row.ChequeNo,
				ExtractedReference: row.Reference,
			},
			Type:              models.TransactionType(row.Type),
			ClassificationID:  row.ClassificationID,
			IsReversal:        row.IsReversal,
			ReversalPairIndex: row.ReversalPairIndex,
		}

		fail := func(field, message string) {
			rowErrors = append(rowErrors, &commit.RowError{
				RowIndex: row.RowIndex,
				Field:    field,
				Message:  message,
			})
		}

		var err error
		if preview.TransactionDate, err = parseWireDate(row.TransactionDate); err != nil {
			fail("transactionDate", err.Error())
		}
		if preview.ValueDate, err = parseWireDate(row.ValueDate); err != nil {
			fail("valueDate", err.Error())
		}
		if preview.Debit, err = parseWireDecimal(row.Debit); err != nil {
			fail("debit", err.Error())
		}
		if preview.Credit, err = parseWireDecimal(row.Credit); err != nil {
			fail("credit", err.Error())
		}
		if preview.Balance, err = parseWireDecimal(row.Balance); err != nil {
			fail("balance", err.Error())
		}

		preview.Amount = preview.Credit.Sub(preview.Debit)
		if row.Type == "" {
			preview.Type = models.TransactionTypeCredit
			if preview.Amount.IsNegative() {
				preview.Type = models.TransactionTypeDebit
			}
		}

		previews = append(previews, preview)
	}

	return previews, rowErrors
}

func parseWireDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got '%s'", s)
	}
	return t, nil
}

func parseWireDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

func parseAccountID(c *fiber.Ctx) (int64, error) {
	accountID, err := strconv.ParseInt(c.Params("accountID"), 10, 64)
	if err != nil || accountID <= 0 {
		return 0, fmt.Errorf("invalid account id '%s'", c.Params("accountID"))
	}
	return accountID, nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// errorResponse maps application errors onto HTTP statuses. Batch
// rejections include the per-row failures so the client can surface them
// against the preview.
func (h *Handler) errorResponse(c *fiber.Ctx, err error) error {
	ingestErr, ok := errors.AsIngestError(err)
	if !ok {
		h.logger.WithError(err).Error("Unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	status := fiber.StatusInternalServerError
	switch ingestErr.Category {
	case errors.CategoryFile, errors.CategoryParse, errors.CategoryValidation:
		status = fiber.StatusBadRequest
	case errors.CategoryCommit:
		switch ingestErr.Code {
		case errors.CodeBatchRejected:
			status = fiber.StatusUnprocessableEntity
		case errors.CodeUnknownAccount:
			status = fiber.StatusNotFound
		default:
			status = fiber.StatusInternalServerError
		}
	case errors.CategoryClassification, errors.CategoryConfiguration:
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{
		"error": ingestErr.Message,
		"code":  string(ingestErr.Code),
	}
	if ingestErr.Suggestion != "" {
		body["suggestion"] = ingestErr.Suggestion
	}
	if rowErrors := commit.RowErrorsFromError(ingestErr); rowErrors != nil {
		body["rowErrors"] = rowErrors
	}

	return c.Status(status).JSON(body)
}
