package services

import (
	"context"
	"fmt"

	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/repositories"
)

// FirmSummary is the finance dashboard payload.
type FirmSummary struct {
	TaskCounts     map[models.TaskStatus]int  `json:"task_counts"`
	Unbilled       []repositories.UnbilledRow `json:"unbilled_by_client"`
	InvoicedAmount float64                    `json:"invoiced_amount"`
	InvoiceCount   int                        `json:"invoice_count"`
}

type ReportService struct {
	repo repositories.ReportRepository
}

func NewReportService(repo repositories.ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

func (s *ReportService) GetSummary(ctx context.Context) (*FirmSummary, error) {
	counts, err := s.repo.TaskStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	unbilled, err := s.repo.UnbilledByClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	invoiced, invoiceCount, err := s.repo.InvoicedTotal(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return &FirmSummary{
		TaskCounts:     counts,
		Unbilled:       unbilled,
		InvoicedAmount: invoiced,
		InvoiceCount:   invoiceCount,
	}, nil
}
