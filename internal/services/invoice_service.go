package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/pdf"
	"caerp/internal/repositories"
)

type CreateInvoiceInput struct {
	InvoiceNumber string // optional, generated when empty
	InvoiceDate   string // RFC3339 or 2006-01-02, defaults to now
	TaskIDs       []int64
}

// InvoiceService scans for completed-but-unbilled tasks, groups them by
// client, computes totals and performs the billing transition. Billing is
// at-most-once per task: each member is claimed with a conditional write
// and an already-Invoiced member is a no-op, so partial-failure retries
// are safe.
type InvoiceService struct {
	tasks    repositories.TaskRepository
	projects repositories.ProjectRepository
	clients  repositories.ClientRepository
	invoices repositories.InvoiceRepository
	progress ProgressRecomputer

	pdfGen pdf.Generator
	email  EmailService
}

func NewInvoiceService(
	tasks repositories.TaskRepository,
	projects repositories.ProjectRepository,
	clients repositories.ClientRepository,
	invoices repositories.InvoiceRepository,
	progress ProgressRecomputer,
	pdfGen pdf.Generator,
	email EmailService,
) *InvoiceService {
	return &InvoiceService{
		tasks:    tasks,
		projects: projects,
		clients:  clients,
		invoices: invoices,
		progress: progress,
		pdfGen:   pdfGen,
		email:    email,
	}
}

// ListInvoiceable returns tasks with status Completed that have not been
// billed yet, optionally scoped by project or assignee. Pure read.
func (s *InvoiceService) ListInvoiceable(ctx context.Context, filter models.TaskFilter) ([]models.TaskView, error) {
	out, err := s.tasks.ListInvoiceable(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return out, nil
}

// ValidateBatch loads the batch members and checks the same-client
// invariant. Performs zero writes.
func (s *InvoiceService) ValidateBatch(ctx context.Context, taskIDs []int64) ([]*models.Task, int64, error) {
	if len(taskIDs) == 0 {
		return nil, 0, fmt.Errorf("%w: no tasks selected", errs.ErrEmptySelection)
	}

	var batch []*models.Task
	var clientID int64
	projectClients := map[int64]int64{} // project id -> client id
	for _, id := range taskIDs {
		task, err := s.tasks.FindByID(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
		}
		if task == nil || task.Deleted {
			return nil, 0, fmt.Errorf("%w: task %d", errs.ErrNotFound, id)
		}

		cid, ok := projectClients[task.ProjectID]
		if !ok {
			project, err := s.projects.FindByID(ctx, task.ProjectID)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
			}
			if project == nil {
				return nil, 0, fmt.Errorf("%w: project %d", errs.ErrNotFound, task.ProjectID)
			}
			cid = project.ClientID
			projectClients[task.ProjectID] = cid
		}

		if clientID == 0 {
			clientID = cid
		} else if cid != clientID {
			return nil, 0, fmt.Errorf("%w: task %d belongs to client %d, batch is for client %d",
				errs.ErrMixedClient, id, cid, clientID)
		}
		batch = append(batch, task)
	}
	return batch, clientID, nil
}

// ComputeTotals sums cost and hours over the batch. Hours prefer logged
// actuals and fall back to the estimate when nothing was logged, so a
// completed task with no time entries still carries its cost basis.
func (s *InvoiceService) ComputeTotals(ctx context.Context, taskIDs []int64) (models.BatchTotals, error) {
	batch, _, err := s.ValidateBatch(ctx, taskIDs)
	if err != nil {
		return models.BatchTotals{}, err
	}
	return totalsOf(batch), nil
}

func totalsOf(batch []*models.Task) models.BatchTotals {
	var t models.BatchTotals
	for _, task := range batch {
		t.TotalAmount += task.Cost
		if task.ActualHours > 0 {
			t.TotalHours += task.ActualHours
		} else {
			t.TotalHours += task.EstimatedHours
		}
	}
	return t
}

func parseInvoiceDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid invoice_date", errs.ErrValidation)
}

// CreateInvoice bills the batch. Members are processed sequentially; a
// member failure is recorded and the loop continues, so the caller always
// learns exactly which subset billed. Already-Invoiced members count as
// succeeded no-ops to keep retries idempotent.
func (s *InvoiceService) CreateInvoice(ctx context.Context, actor Actor, input CreateInvoiceInput) (*models.InvoiceBatchResult, error) {
	if err := requireMutate(actor, authz.ResourceInvoices, authz.ActionInvoice); err != nil {
		return nil, err
	}

	batch, clientID, err := s.ValidateBatch(ctx, input.TaskIDs)
	if err != nil {
		return nil, err
	}

	invoiceDate, err := parseInvoiceDate(input.InvoiceDate)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(input.InvoiceNumber)
	if number == "" {
		number = "INV-" + strings.ToUpper(uuid.NewString()[:8])
	}

	// A number may already exist when the caller retries a partial
	// failure; that is allowed as long as it is the same client's invoice.
	existing, err := s.invoices.FindByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if existing != nil && existing.ClientID != clientID {
		return nil, fmt.Errorf("%w: invoice number %s already used by another client", errs.ErrValidation, number)
	}

	result := &models.InvoiceBatchResult{
		InvoiceNumber: number,
		InvoiceDate:   invoiceDate,
		ClientID:      clientID,
	}

	var billed []*models.Task // tasks this call actually transitioned
	var counted []*models.Task
	touchedProjects := map[int64]bool{}

	for _, task := range batch {
		if task.InvoiceStatus == models.Invoiced || task.Status == models.StatusInvoiced {
			// idempotent no-op: retries must not fail or double-bill
			result.Succeeded = append(result.Succeeded, task.ID)
			counted = append(counted, task)
			continue
		}
		if task.Status != models.StatusCompleted {
			result.Failed = append(result.Failed, models.BatchFailure{
				TaskID: task.ID,
				Error:  fmt.Sprintf("task is %s, only Completed tasks can be invoiced", task.Status),
			})
			continue
		}

		claimed, err := s.tasks.MarkInvoiced(ctx, task.ID, number, invoiceDate)
		if err != nil {
			log.Printf("[invoice][create][err] task=%d: %v", task.ID, err)
			result.Failed = append(result.Failed, models.BatchFailure{TaskID: task.ID, Error: err.Error()})
			continue
		}
		if !claimed {
			// a concurrent batch won the conditional write
			result.Failed = append(result.Failed, models.BatchFailure{
				TaskID: task.ID,
				Error:  "task was claimed by another invoice or changed status",
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, task.ID)
		billed = append(billed, task)
		counted = append(counted, task)
		touchedProjects[task.ProjectID] = true
	}

	totals := totalsOf(counted)
	result.TotalAmount = totals.TotalAmount
	result.TotalHours = totals.TotalHours

	for projectID := range touchedProjects {
		if s.progress != nil {
			if _, err := s.progress.RecomputeProgress(ctx, projectID); err != nil {
				log.Printf("[invoice][create][warn] recompute project=%d: %v", projectID, err)
			}
		}
	}

	if len(billed) > 0 {
		s.recordInvoice(ctx, actor, existing, result, len(billed), totalsOf(billed))
	}
	return result, nil
}

// recordInvoice persists the batch record and fires the PDF/email
// follow-ups. These are best-effort: the billing transitions have already
// committed and are reported in the result regardless.
func (s *InvoiceService) recordInvoice(ctx context.Context, actor Actor, existing *models.Invoice, result *models.InvoiceBatchResult, billedCount int, billedTotals models.BatchTotals) {
	client, err := s.clients.FindByID(ctx, result.ClientID)
	if err != nil || client == nil {
		log.Printf("[invoice][record][warn] client=%d lookup failed: %v", result.ClientID, err)
	}

	if existing != nil {
		if err := s.invoices.AddToTotals(ctx, existing.ID, billedTotals.TotalAmount, billedTotals.TotalHours, billedCount); err != nil {
			log.Printf("[invoice][record][warn] extend %s: %v", result.InvoiceNumber, err)
		}
		return
	}

	inv := &models.Invoice{
		InvoiceNumber: result.InvoiceNumber,
		ClientID:      result.ClientID,
		InvoiceDate:   result.InvoiceDate,
		TotalAmount:   billedTotals.TotalAmount,
		TotalHours:    billedTotals.TotalHours,
		TaskCount:     billedCount,
		CreatedByID:   actor.UserID,
	}

	if s.pdfGen != nil && client != nil {
		path, err := s.pdfGen.GenerateInvoice(pdf.InvoiceData{
			InvoiceNumber: inv.InvoiceNumber,
			ClientName:    client.Name,
			ClientTaxID:   client.TaxID,
			InvoiceDate:   inv.InvoiceDate,
			TotalAmount:   inv.TotalAmount,
			TotalHours:    inv.TotalHours,
			TaskCount:     inv.TaskCount,
		})
		if err != nil {
			log.Printf("[invoice][pdf][warn] %s: %v", inv.InvoiceNumber, err)
		} else {
			inv.FilePath = path
		}
	}

	if err := s.invoices.Store(ctx, inv); err != nil {
		log.Printf("[invoice][record][err] %s: %v", inv.InvoiceNumber, err)
		return
	}

	if s.email != nil && client != nil && client.Email != "" {
		if err := s.email.SendInvoiceIssuedEmail(client.Email, client.Name, inv.InvoiceNumber, inv.TotalAmount); err != nil {
			log.Printf("[invoice][email][warn] %s: %v", inv.InvoiceNumber, err)
		}
	}
}

func (s *InvoiceService) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: invoice %d", errs.ErrNotFound, id)
	}
	return inv, nil
}

func (s *InvoiceService) List(ctx context.Context, clientID *int64, limit, offset int) ([]models.Invoice, int, error) {
	invoices, err := s.invoices.FindAll(ctx, clientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	total, err := s.invoices.Count(ctx, clientID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return invoices, total, nil
}
