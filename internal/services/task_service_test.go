package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
)

func seedProject(projects *fakeProjectRepo, clientID int64) *models.Project {
	return projects.put(&models.Project{ClientID: clientID, Name: "Audit FY25", Status: models.ProjectInProgress})
}

func seedTask(tasks *fakeTaskRepo, projectID, assigneeID int64, status models.TaskStatus) *models.Task {
	return tasks.put(&models.Task{
		ProjectID:     projectID,
		AssigneeID:    &assigneeID,
		Title:         "Prepare VAT return",
		Status:        status,
		Priority:      models.PriorityMedium,
		InvoiceStatus: models.NotInvoiced,
	})
}

func newTaskFixture() (TaskService, *fakeTaskRepo, *fakeProjectRepo, *progressSpy) {
	tasks := newFakeTaskRepo()
	projects := newFakeProjectRepo(tasks)
	spy := &progressSpy{}
	return NewTaskService(tasks, projects, spy), tasks, projects, spy
}

var (
	manager = Actor{UserID: 1, RoleID: authz.RoleManager}
	staff   = Actor{UserID: 7, RoleID: authz.RoleStaff}
	finance = Actor{UserID: 3, RoleID: authz.RoleFinance}
)

func TestCreateTaskDefaults(t *testing.T) {
	svc, _, projects, spy := newTaskFixture()
	project := seedProject(projects, 1)

	task, err := svc.Create(context.Background(), manager, CreateTaskInput{
		ProjectID:  project.ID,
		AssigneeID: 7,
		Title:      "Prepare VAT return",
		DueDate:    time.Now().Add(72 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != models.StatusPending {
		t.Errorf("status = %q, want %q", task.Status, models.StatusPending)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("priority = %q, want %q", task.Priority, models.PriorityMedium)
	}
	if task.InvoiceStatus != models.NotInvoiced {
		t.Errorf("invoice_status = %q, want %q", task.InvoiceStatus, models.NotInvoiced)
	}
	if len(spy.calls) != 1 || spy.calls[0] != project.ID {
		t.Errorf("progress recompute calls = %v, want [%d]", spy.calls, project.ID)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	due := time.Now().Format(time.RFC3339)

	cases := []struct {
		name  string
		input CreateTaskInput
	}{
		{"missing title", CreateTaskInput{ProjectID: project.ID, AssigneeID: 7, DueDate: due}},
		{"missing project", CreateTaskInput{AssigneeID: 7, Title: "x", DueDate: due}},
		{"missing assignee", CreateTaskInput{ProjectID: project.ID, Title: "x", DueDate: due}},
		{"missing due date", CreateTaskInput{ProjectID: project.ID, AssigneeID: 7, Title: "x"}},
		{"bad due date", CreateTaskInput{ProjectID: project.ID, AssigneeID: 7, Title: "x", DueDate: "tomorrow"}},
		{"negative cost", CreateTaskInput{ProjectID: project.ID, AssigneeID: 7, Title: "x", DueDate: due, Cost: -1}},
		{"unknown project", CreateTaskInput{ProjectID: 999, AssigneeID: 7, Title: "x", DueDate: due}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), manager, tc.input); !errors.Is(err, errs.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateTaskStaffSelfAssignOnly(t *testing.T) {
	svc, _, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	due := time.Now().Format(time.RFC3339)

	_, err := svc.Create(context.Background(), staff, CreateTaskInput{
		ProjectID: project.ID, AssigneeID: 99, Title: "x", DueDate: due,
	})
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if _, err := svc.Create(context.Background(), staff, CreateTaskInput{
		ProjectID: project.ID, AssigneeID: staff.UserID, Title: "x", DueDate: due,
	}); err != nil {
		t.Fatalf("self-assign: %v", err)
	}
}

func TestChangeStatusTransitions(t *testing.T) {
	cases := []struct {
		name string
		from models.TaskStatus
		to   models.TaskStatus
		ok   bool
	}{
		{"pending to in-progress", models.StatusPending, models.StatusInProgress, true},
		{"pending to review", models.StatusPending, models.StatusReview, false},
		{"pending to completed", models.StatusPending, models.StatusCompleted, false},
		{"in-progress to review", models.StatusInProgress, models.StatusReview, true},
		{"in-progress back to pending", models.StatusInProgress, models.StatusPending, true},
		{"review to completed", models.StatusReview, models.StatusCompleted, true},
		{"review back to in-progress", models.StatusReview, models.StatusInProgress, true},
		{"completed to cancelled", models.StatusCompleted, models.StatusCancelled, true},
		{"completed back to review", models.StatusCompleted, models.StatusReview, false},
		{"cancelled is terminal", models.StatusCancelled, models.StatusPending, false},
		{"invoiced is terminal", models.StatusInvoiced, models.StatusCancelled, false},
		{"pending to cancelled", models.StatusPending, models.StatusCancelled, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, tasks, projects, _ := newTaskFixture()
			project := seedProject(projects, 1)
			task := seedTask(tasks, project.ID, 7, tc.from)

			_, err := svc.ChangeStatus(context.Background(), manager, task.ID, tc.to)
			if tc.ok && err != nil {
				t.Errorf("ChangeStatus(%s -> %s): %v", tc.from, tc.to, err)
			}
			if !tc.ok && !errors.Is(err, errs.ErrInvalidTransition) {
				t.Errorf("ChangeStatus(%s -> %s) err = %v, want ErrInvalidTransition", tc.from, tc.to, err)
			}
		})
	}
}

func TestChangeStatusRejectsDirectInvoiced(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusCompleted)

	_, err := svc.ChangeStatus(context.Background(), manager, task.ID, models.StatusInvoiced)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestChangeStatusUnknownStatus(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	_, err := svc.ChangeStatus(context.Background(), manager, task.ID, "Done")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestChangeStatusStampsCompletedAt(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusReview)

	updated, err := svc.ChangeStatus(context.Background(), manager, task.ID, models.StatusCompleted)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

// failingRecomputer simulates an unavailable progress refresh.
type failingRecomputer struct{}

func (failingRecomputer) RecomputeProgress(_ context.Context, _ int64) (*models.Project, error) {
	return nil, errors.New("progress store down")
}

func TestChangeStatusSucceedsWhenRecomputeFails(t *testing.T) {
	tasks := newFakeTaskRepo()
	projects := newFakeProjectRepo(tasks)
	svc := NewTaskService(tasks, projects, failingRecomputer{})
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	updated, err := svc.ChangeStatus(context.Background(), manager, task.ID, models.StatusInProgress)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("status = %q, want %q", updated.Status, models.StatusInProgress)
	}
	if got := tasks.tasks[task.ID].Status; got != models.StatusInProgress {
		t.Errorf("stored status = %q, want %q", got, models.StatusInProgress)
	}
}

func TestChangeStatusStaffOwnership(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	other := seedTask(tasks, project.ID, 99, models.StatusPending)

	_, err := svc.ChangeStatus(context.Background(), staff, other.ID, models.StatusInProgress)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	own := seedTask(tasks, project.ID, staff.UserID, models.StatusPending)
	if _, err := svc.ChangeStatus(context.Background(), staff, own.ID, models.StatusInProgress); err != nil {
		t.Fatalf("own task: %v", err)
	}
}

func TestFinanceCannotMutateTasks(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	_, err := svc.ChangeStatus(context.Background(), finance, task.ID, models.StatusInProgress)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestSoftDeleteExcludesFromListKeepsGet(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	if err := svc.SoftDelete(context.Background(), manager, task.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	list, total, err := svc.List(context.Background(), manager, models.TaskFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 || total != 0 {
		t.Errorf("list after delete = %d items (total %d), want 0", len(list), total)
	}

	got, err := svc.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if !got.Deleted {
		t.Error("deleted flag not set on direct fetch")
	}

	if _, err := svc.ChangeStatus(context.Background(), manager, task.ID, models.StatusInProgress); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("mutation on deleted task err = %v, want ErrNotFound", err)
	}
}

func TestListStaffScopedToOwnAssignments(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	seedTask(tasks, project.ID, staff.UserID, models.StatusPending)
	seedTask(tasks, project.ID, 99, models.StatusPending)

	list, total, err := svc.List(context.Background(), staff, models.TaskFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("staff list = %d (total %d), want 1", len(list), total)
	}
	if list[0].AssigneeID == nil || *list[0].AssigneeID != staff.UserID {
		t.Errorf("staff list leaked a foreign assignment")
	}
}

func TestAddTimeEntryRecomputesActualHours(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusInProgress)

	_, hours, err := svc.AddTimeEntry(context.Background(), manager, task.ID, TimeEntryInput{Hours: 2.5})
	if err != nil {
		t.Fatalf("AddTimeEntry: %v", err)
	}
	if hours != 2.5 {
		t.Errorf("actual_hours = %v, want 2.5", hours)
	}

	_, hours, err = svc.AddTimeEntry(context.Background(), manager, task.ID, TimeEntryInput{Hours: 1.5, Date: "2026-08-30"})
	if err != nil {
		t.Fatalf("AddTimeEntry: %v", err)
	}
	if hours != 4 {
		t.Errorf("actual_hours = %v, want 4 (full resum, not increment)", hours)
	}
}

func TestAddTimeEntryRejectsNonPositiveHours(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusInProgress)

	for _, hours := range []float64{0, -1} {
		if _, _, err := svc.AddTimeEntry(context.Background(), manager, task.ID, TimeEntryInput{Hours: hours}); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("hours=%v err = %v, want ErrValidation", hours, err)
		}
	}
}

func TestAddSubtaskAppendsPosition(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	first, err := svc.AddSubtask(context.Background(), manager, task.ID, "collect ledgers")
	if err != nil {
		t.Fatalf("AddSubtask: %v", err)
	}
	second, err := svc.AddSubtask(context.Background(), manager, task.ID, "reconcile bank")
	if err != nil {
		t.Fatalf("AddSubtask: %v", err)
	}
	if first.Position != 1 || second.Position != 2 {
		t.Errorf("positions = %d,%d, want 1,2", first.Position, second.Position)
	}
	if first.Status != models.SubtaskPending {
		t.Errorf("subtask status = %q, want %q", first.Status, models.SubtaskPending)
	}
}

func TestUpdateCannotSetCompletedAtDirectly(t *testing.T) {
	svc, tasks, projects, _ := newTaskFixture()
	project := seedProject(projects, 1)
	task := seedTask(tasks, project.ID, 7, models.StatusPending)

	title := "renamed"
	updated, err := svc.Update(context.Background(), manager, task.ID, TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Error("completed_at set without a Completed transition")
	}
	if updated.Title != "renamed" {
		t.Errorf("title = %q, want renamed", updated.Title)
	}
}
