package services

import (
	"context"
	"sort"
	"time"

	"caerp/internal/models"
)

// In-memory repository fakes shared by the service tests.

type fakeTaskRepo struct {
	tasks       map[int64]*models.Task
	subtasks    map[int64][]models.Subtask
	comments    map[int64][]models.Comment
	attachments map[int64][]models.Attachment
	timeEntries map[int64][]models.TimeEntry
	nextID      int64

	// claimDenied forces MarkInvoiced to report a lost conditional write
	// for the given task ids, simulating a concurrent batch.
	claimDenied map[int64]bool

	markInvoicedCalls int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks:       map[int64]*models.Task{},
		subtasks:    map[int64][]models.Subtask{},
		comments:    map[int64][]models.Comment{},
		attachments: map[int64][]models.Attachment{},
		timeEntries: map[int64][]models.TimeEntry{},
		claimDenied: map[int64]bool{},
	}
}

func (r *fakeTaskRepo) put(t *models.Task) *models.Task {
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	} else if t.ID > r.nextID {
		r.nextID = t.ID
	}
	r.tasks[t.ID] = t
	return t
}

func (r *fakeTaskRepo) Store(_ context.Context, task *models.Task) error {
	r.put(task)
	return nil
}

func (r *fakeTaskRepo) FindByID(_ context.Context, id int64) (*models.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) FindView(_ context.Context, id int64) (*models.TaskView, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return &models.TaskView{Task: *t}, nil
}

func (r *fakeTaskRepo) matches(t *models.Task, filter models.TaskFilter) bool {
	if t.Deleted {
		return false
	}
	if filter.ProjectID != nil && t.ProjectID != *filter.ProjectID {
		return false
	}
	if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if filter.Status != nil && t.Status != *filter.Status {
		return false
	}
	if filter.Priority != nil && t.Priority != *filter.Priority {
		return false
	}
	return true
}

func (r *fakeTaskRepo) FindAll(_ context.Context, filter models.TaskFilter, limit, offset int) ([]models.TaskView, error) {
	var out []models.TaskView
	for _, t := range r.tasks {
		if r.matches(t, filter) {
			out = append(out, models.TaskView{Task: *t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTaskRepo) Count(_ context.Context, filter models.TaskFilter) (int, error) {
	n := 0
	for _, t := range r.tasks {
		if r.matches(t, filter) {
			n++
		}
	}
	return n, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *models.Task) error {
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) SoftDelete(_ context.Context, id int64) error {
	if t, ok := r.tasks[id]; ok {
		t.Deleted = true
	}
	return nil
}

func (r *fakeTaskRepo) UpdateStatus(_ context.Context, id int64, to models.TaskStatus, completedAt *time.Time) error {
	if t, ok := r.tasks[id]; ok {
		t.Status = to
		if completedAt != nil {
			t.CompletedAt = completedAt
		}
	}
	return nil
}

func (r *fakeTaskRepo) UpdateAssignee(_ context.Context, id int64, assigneeID int64) error {
	if t, ok := r.tasks[id]; ok {
		t.AssigneeID = &assigneeID
	}
	return nil
}

func (r *fakeTaskRepo) MarkInvoiced(_ context.Context, id int64, invoiceNumber string, invoiceDate time.Time) (bool, error) {
	r.markInvoicedCalls++
	t, ok := r.tasks[id]
	if !ok {
		return false, nil
	}
	if r.claimDenied[id] || t.Status != models.StatusCompleted || t.Deleted {
		return false, nil
	}
	now := time.Now()
	t.Status = models.StatusInvoiced
	t.InvoiceStatus = models.Invoiced
	t.InvoiceNumber = &invoiceNumber
	t.InvoiceDate = &invoiceDate
	t.InvoicedAt = &now
	return true, nil
}

func (r *fakeTaskRepo) ListInvoiceable(_ context.Context, filter models.TaskFilter) ([]models.TaskView, error) {
	var out []models.TaskView
	for _, t := range r.tasks {
		if t.Deleted || t.Status != models.StatusCompleted || t.InvoiceStatus == models.Invoiced {
			continue
		}
		if r.matches(t, filter) {
			out = append(out, models.TaskView{Task: *t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTaskRepo) AddSubtask(_ context.Context, st *models.Subtask) error {
	r.nextID++
	st.ID = r.nextID
	st.Position = len(r.subtasks[st.TaskID]) + 1
	r.subtasks[st.TaskID] = append(r.subtasks[st.TaskID], *st)
	return nil
}

func (r *fakeTaskRepo) ListSubtasks(_ context.Context, taskID int64) ([]models.Subtask, error) {
	return r.subtasks[taskID], nil
}

func (r *fakeTaskRepo) AddComment(_ context.Context, cm *models.Comment) error {
	r.nextID++
	cm.ID = r.nextID
	cm.CreatedAt = time.Now()
	r.comments[cm.TaskID] = append(r.comments[cm.TaskID], *cm)
	return nil
}

func (r *fakeTaskRepo) ListComments(_ context.Context, taskID int64) ([]models.Comment, error) {
	return r.comments[taskID], nil
}

func (r *fakeTaskRepo) AddAttachment(_ context.Context, at *models.Attachment) error {
	r.nextID++
	at.ID = r.nextID
	at.UploadedAt = time.Now()
	r.attachments[at.TaskID] = append(r.attachments[at.TaskID], *at)
	return nil
}

func (r *fakeTaskRepo) ListAttachments(_ context.Context, taskID int64) ([]models.Attachment, error) {
	return r.attachments[taskID], nil
}

func (r *fakeTaskRepo) AddTimeEntry(_ context.Context, te *models.TimeEntry) error {
	r.nextID++
	te.ID = r.nextID
	r.timeEntries[te.TaskID] = append(r.timeEntries[te.TaskID], *te)
	return nil
}

func (r *fakeTaskRepo) ListTimeEntries(_ context.Context, taskID int64) ([]models.TimeEntry, error) {
	return r.timeEntries[taskID], nil
}

func (r *fakeTaskRepo) RecomputeActualHours(_ context.Context, taskID int64) (float64, error) {
	var sum float64
	for _, te := range r.timeEntries[taskID] {
		sum += te.Hours
	}
	if t, ok := r.tasks[taskID]; ok {
		t.ActualHours = sum
	}
	return sum, nil
}

type fakeProjectRepo struct {
	projects map[int64]*models.Project
	notes    map[int64]*models.ProjectNote
	docs     map[int64][]models.ProjectDocument
	nextID   int64

	// tasks backs TaskCounts so derived progress matches the task fake
	tasks *fakeTaskRepo
}

func newFakeProjectRepo(tasks *fakeTaskRepo) *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: map[int64]*models.Project{},
		notes:    map[int64]*models.ProjectNote{},
		docs:     map[int64][]models.ProjectDocument{},
		tasks:    tasks,
	}
}

func (r *fakeProjectRepo) put(p *models.Project) *models.Project {
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	r.projects[p.ID] = p
	return p
}

func (r *fakeProjectRepo) Store(_ context.Context, p *models.Project) error {
	r.put(p)
	return nil
}

func (r *fakeProjectRepo) FindByID(_ context.Context, id int64) (*models.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProjectRepo) FindAll(_ context.Context, filter models.ProjectFilter, limit, offset int) ([]models.Project, error) {
	var out []models.Project
	for _, p := range r.projects {
		if p.Deleted {
			continue
		}
		if filter.ClientID != nil && p.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeProjectRepo) Count(_ context.Context, filter models.ProjectFilter) (int, error) {
	projects, _ := r.FindAll(context.Background(), filter, 0, 0)
	return len(projects), nil
}

func (r *fakeProjectRepo) Update(_ context.Context, p *models.Project) error {
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *fakeProjectRepo) SoftDelete(_ context.Context, id int64) error {
	if p, ok := r.projects[id]; ok {
		p.Deleted = true
	}
	return nil
}

func (r *fakeProjectRepo) TaskCounts(_ context.Context, projectID int64) (int, int, error) {
	total, completed := 0, 0
	if r.tasks == nil {
		return 0, 0, nil
	}
	for _, t := range r.tasks.tasks {
		if t.ProjectID != projectID || t.Deleted {
			continue
		}
		total++
		if t.Status == models.StatusCompleted || t.Status == models.StatusInvoiced {
			completed++
		}
	}
	return total, completed, nil
}

func (r *fakeProjectRepo) UpdateProgress(_ context.Context, id int64, total, completed, percentage int) error {
	if p, ok := r.projects[id]; ok {
		p.TotalTasks = total
		p.CompletedTasks = completed
		p.CompletionPercentage = percentage
	}
	return nil
}

func (r *fakeProjectRepo) HasAssignedTask(_ context.Context, projectID, userID int64) (bool, error) {
	if r.tasks == nil {
		return false, nil
	}
	for _, t := range r.tasks.tasks {
		if t.ProjectID == projectID && !t.Deleted && t.AssigneeID != nil && *t.AssigneeID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeProjectRepo) FindNote(_ context.Context, noteID int64) (*models.ProjectNote, error) {
	n, ok := r.notes[noteID]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *fakeProjectRepo) AddNote(_ context.Context, note *models.ProjectNote) error {
	r.nextID++
	note.ID = r.nextID
	note.CreatedAt = time.Now()
	note.UpdatedAt = note.CreatedAt
	cp := *note
	r.notes[note.ID] = &cp
	return nil
}

func (r *fakeProjectRepo) UpdateNoteContent(_ context.Context, noteID int64, content string) (bool, error) {
	n, ok := r.notes[noteID]
	if !ok || n.Deleted {
		return false, nil
	}
	n.Content = content
	n.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeProjectRepo) SoftDeleteNote(_ context.Context, noteID int64) (bool, error) {
	n, ok := r.notes[noteID]
	if !ok || n.Deleted {
		return false, nil
	}
	n.Deleted = true
	return true, nil
}

func (r *fakeProjectRepo) ListNotes(_ context.Context, projectID int64) ([]models.ProjectNote, error) {
	var out []models.ProjectNote
	for _, n := range r.notes {
		if n.ProjectID == projectID && !n.Deleted {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeProjectRepo) AddDocument(_ context.Context, doc *models.ProjectDocument) error {
	r.nextID++
	doc.ID = r.nextID
	doc.UploadedAt = time.Now()
	r.docs[doc.ProjectID] = append(r.docs[doc.ProjectID], *doc)
	return nil
}

func (r *fakeProjectRepo) ListDocuments(_ context.Context, projectID int64) ([]models.ProjectDocument, error) {
	return r.docs[projectID], nil
}

type fakeClientRepo struct {
	clients map[int64]*models.Client
	nextID  int64
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: map[int64]*models.Client{}}
}

func (r *fakeClientRepo) put(c *models.Client) *models.Client {
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	} else if c.ID > r.nextID {
		r.nextID = c.ID
	}
	r.clients[c.ID] = c
	return c
}

func (r *fakeClientRepo) Store(_ context.Context, client *models.Client) error {
	r.put(client)
	return nil
}

func (r *fakeClientRepo) FindByID(_ context.Context, id int64) (*models.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeClientRepo) FindByTaxID(_ context.Context, taxID string) (*models.Client, error) {
	for _, c := range r.clients {
		if c.TaxID == taxID && !c.Deleted {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeClientRepo) FindAll(_ context.Context, limit, offset int) ([]models.Client, error) {
	var out []models.Client
	for _, c := range r.clients {
		if !c.Deleted {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeClientRepo) Count(_ context.Context) (int, error) {
	clients, _ := r.FindAll(context.Background(), 0, 0)
	return len(clients), nil
}

func (r *fakeClientRepo) FindByName(_ context.Context, name string) ([]models.Client, error) {
	var out []models.Client
	for _, c := range r.clients {
		if !c.Deleted && c.Name == name {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeClientRepo) Update(_ context.Context, client *models.Client) error {
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *fakeClientRepo) SoftDelete(_ context.Context, id int64) error {
	if c, ok := r.clients[id]; ok {
		c.Deleted = true
	}
	return nil
}

type fakeInvoiceRepo struct {
	invoices map[int64]*models.Invoice
	nextID   int64
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: map[int64]*models.Invoice{}}
}

func (r *fakeInvoiceRepo) Store(_ context.Context, inv *models.Invoice) error {
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) FindByID(_ context.Context, id int64) (*models.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) FindByNumber(_ context.Context, number string) (*models.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeInvoiceRepo) FindAll(_ context.Context, clientID *int64, limit, offset int) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range r.invoices {
		if clientID != nil && inv.ClientID != *clientID {
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeInvoiceRepo) Count(_ context.Context, clientID *int64) (int, error) {
	invoices, _ := r.FindAll(context.Background(), clientID, 0, 0)
	return len(invoices), nil
}

func (r *fakeInvoiceRepo) AddToTotals(_ context.Context, id int64, amount, hours float64, taskCount int) error {
	if inv, ok := r.invoices[id]; ok {
		inv.TotalAmount += amount
		inv.TotalHours += hours
		inv.TaskCount += taskCount
	}
	return nil
}

// progressSpy records which projects were recomputed.
type progressSpy struct {
	calls []int64
}

func (p *progressSpy) RecomputeProgress(_ context.Context, projectID int64) (*models.Project, error) {
	p.calls = append(p.calls, projectID)
	return &models.Project{ID: projectID}, nil
}
