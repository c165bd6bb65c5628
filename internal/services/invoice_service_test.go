package services

import (
	"context"
	"errors"
	"testing"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
)

type invoiceFixture struct {
	svc      *InvoiceService
	tasks    *fakeTaskRepo
	projects *fakeProjectRepo
	clients  *fakeClientRepo
	invoices *fakeInvoiceRepo
	spy      *progressSpy
}

func newInvoiceFixture() *invoiceFixture {
	tasks := newFakeTaskRepo()
	projects := newFakeProjectRepo(tasks)
	clients := newFakeClientRepo()
	invoices := newFakeInvoiceRepo()
	spy := &progressSpy{}
	return &invoiceFixture{
		svc:      NewInvoiceService(tasks, projects, clients, invoices, spy, nil, nil),
		tasks:    tasks,
		projects: projects,
		clients:  clients,
		invoices: invoices,
		spy:      spy,
	}
}

func (f *invoiceFixture) seedClientProject(name string) *models.Project {
	client := f.clients.put(&models.Client{Name: name})
	return f.projects.put(&models.Project{ClientID: client.ID, Name: name + " engagement"})
}

func (f *invoiceFixture) seedBillable(projectID int64, cost, actual, estimated float64) *models.Task {
	return f.tasks.put(&models.Task{
		ProjectID:      projectID,
		Title:          "billable work",
		Status:         models.StatusCompleted,
		EstimatedHours: estimated,
		ActualHours:    actual,
		Cost:           cost,
		InvoiceStatus:  models.NotInvoiced,
	})
}

var financeActor = Actor{UserID: 3, RoleID: authz.RoleFinance}

func TestCreateInvoiceHappyPath(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	t1 := f.seedBillable(project.ID, 5000, 0, 8) // no logged hours, estimate counts
	t2 := f.seedBillable(project.ID, 3000, 6, 8)

	result, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		TaskIDs: []int64{t1.ID, t2.ID},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if len(result.Succeeded) != 2 || len(result.Failed) != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 2/0", len(result.Succeeded), len(result.Failed))
	}
	if result.TotalAmount != 8000 {
		t.Errorf("total_amount = %v, want 8000", result.TotalAmount)
	}
	if result.TotalHours != 14 {
		t.Errorf("total_hours = %v, want 14 (estimate fallback for unlogged task)", result.TotalHours)
	}
	if result.InvoiceNumber == "" {
		t.Error("invoice number not generated")
	}

	for _, id := range []int64{t1.ID, t2.ID} {
		task := f.tasks.tasks[id]
		if task.Status != models.StatusInvoiced || task.InvoiceStatus != models.Invoiced {
			t.Errorf("task %d status=%q invoice_status=%q, want Invoiced", id, task.Status, task.InvoiceStatus)
		}
		if task.InvoiceNumber == nil || *task.InvoiceNumber != result.InvoiceNumber {
			t.Errorf("task %d missing invoice number", id)
		}
	}

	if len(f.spy.calls) != 1 || f.spy.calls[0] != project.ID {
		t.Errorf("progress recompute calls = %v, want [%d]", f.spy.calls, project.ID)
	}

	stored, _ := f.invoices.FindByNumber(context.Background(), result.InvoiceNumber)
	if stored == nil {
		t.Fatal("invoice record not persisted")
	}
	if stored.TaskCount != 2 || stored.TotalAmount != 8000 {
		t.Errorf("stored invoice = %d tasks / %v amount, want 2 / 8000", stored.TaskCount, stored.TotalAmount)
	}
}

func TestCreateInvoiceEmptySelection(t *testing.T) {
	f := newInvoiceFixture()
	_, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{})
	if !errors.Is(err, errs.ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
}

func TestCreateInvoiceMixedClientsNoWrites(t *testing.T) {
	f := newInvoiceFixture()
	acme := f.seedClientProject("Acme")
	globex := f.seedClientProject("Globex")
	t1 := f.seedBillable(acme.ID, 1000, 1, 1)
	t2 := f.seedBillable(globex.ID, 2000, 2, 2)

	_, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		TaskIDs: []int64{t1.ID, t2.ID},
	})
	if !errors.Is(err, errs.ErrMixedClient) {
		t.Fatalf("err = %v, want ErrMixedClient", err)
	}
	if f.tasks.markInvoicedCalls != 0 {
		t.Errorf("markInvoiced called %d times on a rejected batch, want 0", f.tasks.markInvoicedCalls)
	}
	for _, id := range []int64{t1.ID, t2.ID} {
		if f.tasks.tasks[id].InvoiceStatus != models.NotInvoiced {
			t.Errorf("task %d billed despite batch rejection", id)
		}
	}
}

func TestCreateInvoiceNotCompletedMemberFailsButLoopContinues(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	good := f.seedBillable(project.ID, 1000, 2, 2)
	pending := f.tasks.put(&models.Task{
		ProjectID: project.ID, Title: "wip", Status: models.StatusInProgress,
		InvoiceStatus: models.NotInvoiced, Cost: 500,
	})

	result, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		TaskIDs: []int64{pending.ID, good.ID},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if len(result.Succeeded) != 1 || result.Succeeded[0] != good.ID {
		t.Errorf("succeeded = %v, want [%d]", result.Succeeded, good.ID)
	}
	if len(result.Failed) != 1 || result.Failed[0].TaskID != pending.ID {
		t.Fatalf("failed = %v, want one entry for task %d", result.Failed, pending.ID)
	}
	if result.TotalAmount != 1000 {
		t.Errorf("total_amount = %v, want 1000 (failed member excluded)", result.TotalAmount)
	}
	if f.tasks.tasks[pending.ID].Status != models.StatusInProgress {
		t.Error("failed member was mutated")
	}
}

func TestCreateInvoiceIdempotentRetry(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	t1 := f.seedBillable(project.ID, 1000, 2, 2)
	t2 := f.seedBillable(project.ID, 2000, 3, 3)

	first, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		InvoiceNumber: "INV-RETRY1",
		TaskIDs:       []int64{t1.ID},
	})
	if err != nil {
		t.Fatalf("first CreateInvoice: %v", err)
	}

	// retry with the already-billed member plus a fresh one
	second, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		InvoiceNumber: "INV-RETRY1",
		TaskIDs:       []int64{t1.ID, t2.ID},
	})
	if err != nil {
		t.Fatalf("retry CreateInvoice: %v", err)
	}
	if len(second.Succeeded) != 2 || len(second.Failed) != 0 {
		t.Fatalf("retry succeeded=%d failed=%d, want 2/0", len(second.Succeeded), len(second.Failed))
	}
	if second.TotalAmount != 3000 {
		t.Errorf("retry total = %v, want 3000 (both members counted)", second.TotalAmount)
	}

	stored, _ := f.invoices.FindByNumber(context.Background(), "INV-RETRY1")
	if stored == nil {
		t.Fatal("invoice record missing")
	}
	if stored.TaskCount != 2 || stored.TotalAmount != first.TotalAmount+2000 {
		t.Errorf("stored after retry = %d tasks / %v, want 2 / 3000", stored.TaskCount, stored.TotalAmount)
	}
}

func TestCreateInvoiceNumberOwnedByOtherClient(t *testing.T) {
	f := newInvoiceFixture()
	acme := f.seedClientProject("Acme")
	globex := f.seedClientProject("Globex")
	t1 := f.seedBillable(acme.ID, 1000, 1, 1)
	t2 := f.seedBillable(globex.ID, 2000, 2, 2)

	if _, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		InvoiceNumber: "INV-SHARED",
		TaskIDs:       []int64{t1.ID},
	}); err != nil {
		t.Fatalf("first CreateInvoice: %v", err)
	}

	_, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		InvoiceNumber: "INV-SHARED",
		TaskIDs:       []int64{t2.ID},
	})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation (number belongs to another client)", err)
	}
}

func TestCreateInvoiceConcurrentClaimLost(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	contested := f.seedBillable(project.ID, 1000, 1, 1)
	clean := f.seedBillable(project.ID, 2000, 2, 2)
	f.tasks.claimDenied[contested.ID] = true

	result, err := f.svc.CreateInvoice(context.Background(), financeActor, CreateInvoiceInput{
		TaskIDs: []int64{contested.ID, clean.ID},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0].TaskID != contested.ID {
		t.Fatalf("failed = %v, want lost claim for task %d", result.Failed, contested.ID)
	}
	if len(result.Succeeded) != 1 || result.Succeeded[0] != clean.ID {
		t.Errorf("succeeded = %v, want [%d]", result.Succeeded, clean.ID)
	}
}

func TestCreateInvoiceRequiresFinanceRole(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	task := f.seedBillable(project.ID, 1000, 1, 1)

	_, err := f.svc.CreateInvoice(context.Background(), Actor{UserID: 7, RoleID: authz.RoleStaff}, CreateInvoiceInput{
		TaskIDs: []int64{task.ID},
	})
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestListInvoiceableExcludesBilledAndDeleted(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	open := f.seedBillable(project.ID, 1000, 1, 1)
	billed := f.seedBillable(project.ID, 2000, 2, 2)
	billed.Status = models.StatusInvoiced
	billed.InvoiceStatus = models.Invoiced
	gone := f.seedBillable(project.ID, 3000, 3, 3)
	gone.Deleted = true

	out, err := f.svc.ListInvoiceable(context.Background(), models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListInvoiceable: %v", err)
	}
	if len(out) != 1 || out[0].ID != open.ID {
		t.Fatalf("invoiceable = %v, want only task %d", out, open.ID)
	}
}

func TestComputeTotalsIsPureRead(t *testing.T) {
	f := newInvoiceFixture()
	project := f.seedClientProject("Acme")
	t1 := f.seedBillable(project.ID, 5000, 0, 8)
	t2 := f.seedBillable(project.ID, 3000, 6, 8)

	totals, err := f.svc.ComputeTotals(context.Background(), []int64{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("ComputeTotals: %v", err)
	}
	if totals.TotalAmount != 8000 || totals.TotalHours != 14 {
		t.Errorf("totals = %+v, want {8000 14}", totals)
	}
	if f.tasks.markInvoicedCalls != 0 {
		t.Error("ComputeTotals performed writes")
	}
}

func TestValidateBatchUnknownTask(t *testing.T) {
	f := newInvoiceFixture()
	_, _, err := f.svc.ValidateBatch(context.Background(), []int64{42})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
