package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// fakeRepo is an in-memory repository.Repository used by the service tests.
// It is deliberately simple: maps guarded by one mutex, with per-method
// error injection through failOn.
type fakeRepo struct {
	mu sync.Mutex

	worlds        map[string]*models.World
	users         map[string]*models.User
	dossiers      map[string]*models.Dossier
	clientInfos   map[string]*models.ClientInfo // keyed by dossier id
	attachments   []*models.Attachment
	appointments  []*models.Appointment
	comments      []*models.Comment
	notifications []*models.Notification
	tasks         []*models.Task
	templates     map[string]*models.WorkflowTemplate
	steps         map[string]*models.WorkflowStep
	progress      map[string]*models.WorkflowProgress // keyed by dossier id + "/" + step id
	history       []*models.WorkflowHistory
	rollbacks     []*models.RollbackEntry
	transfers     map[string]*models.Transfer

	// failOn maps a method name to the error it should return.
	failOn map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		worlds:      map[string]*models.World{},
		users:       map[string]*models.User{},
		dossiers:    map[string]*models.Dossier{},
		clientInfos: map[string]*models.ClientInfo{},
		templates:   map[string]*models.WorkflowTemplate{},
		steps:       map[string]*models.WorkflowStep{},
		progress:    map[string]*models.WorkflowProgress{},
		transfers:   map[string]*models.Transfer{},
		failOn:      map[string]error{},
	}
}

func (f *fakeRepo) fail(method string) error {
	if err, ok := f.failOn[method]; ok {
		return err
	}
	return nil
}

func progressKey(dossierID, stepID string) string {
	return dossierID + "/" + stepID
}

func fillID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func (f *fakeRepo) Ping(ctx context.Context) error { return f.fail("Ping") }

func (f *fakeRepo) CreateWorld(ctx context.Context, world *models.World) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&world.ID)
	f.worlds[world.ID] = world
	return nil
}

func (f *fakeRepo) GetWorldByID(ctx context.Context, id string) (*models.World, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.worlds[id]; ok {
		return w, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) GetWorldByCode(ctx context.Context, code string) (*models.World, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.worlds {
		if w.Code == code {
			return w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&user.ID)
	f.users[user.ID] = user
	return nil
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) SearchUsersByName(ctx context.Context, query string) ([]*models.User, error) {
	if err := f.fail("SearchUsersByName"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.FullName), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeRepo) CreateDossier(ctx context.Context, dossier *models.Dossier) error {
	if err := f.fail("CreateDossier"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&dossier.ID)
	f.dossiers[dossier.ID] = dossier
	return nil
}

func (f *fakeRepo) GetDossier(ctx context.Context, id string) (*models.Dossier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.dossiers[id]; ok {
		return d, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) CreateClientInfo(ctx context.Context, info *models.ClientInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&info.ID)
	if _, exists := f.clientInfos[info.DossierID]; exists {
		return fmt.Errorf("client info already exists for dossier %s", info.DossierID)
	}
	f.clientInfos[info.DossierID] = info
	return nil
}

func (f *fakeRepo) GetClientInfoByDossier(ctx context.Context, dossierID string) (*models.ClientInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.clientInfos[dossierID]; ok {
		return info, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	if err := f.fail("CreateAttachment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&att.ID)
	f.attachments = append(f.attachments, att)
	return nil
}

func (f *fakeRepo) ListAttachments(ctx context.Context, dossierID string) ([]*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Attachment
	for _, a := range f.attachments {
		if a.DossierID == dossierID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&appt.ID)
	f.appointments = append(f.appointments, appt)
	return nil
}

func (f *fakeRepo) ListAppointments(ctx context.Context, dossierID string) ([]*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Appointment
	for _, a := range f.appointments {
		if a.DossierID == dossierID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateComment(ctx context.Context, comment *models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&comment.ID)
	f.comments = append(f.comments, comment)
	return nil
}

func (f *fakeRepo) ListComments(ctx context.Context, dossierID string) ([]*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Comment
	for _, c := range f.comments {
		if c.DossierID == dossierID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := f.fail("CreateNotification"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&n.ID)
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeRepo) CreateTask(ctx context.Context, task *models.Task) error {
	if err := f.fail("CreateTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&task.ID)
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeRepo) CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&tpl.ID)
	f.templates[tpl.ID] = tpl
	return nil
}

func (f *fakeRepo) GetActiveTemplate(ctx context.Context, worldID string) (*models.WorkflowTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tpl := range f.templates {
		if tpl.WorldID == worldID && tpl.IsActive {
			return tpl, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) CreateStep(ctx context.Context, step *models.WorkflowStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&step.ID)
	f.steps[step.ID] = step
	return nil
}

func (f *fakeRepo) GetStep(ctx context.Context, id string) (*models.WorkflowStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.steps[id]; ok {
		return s, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) ListTemplateSteps(ctx context.Context, templateID string) ([]*models.WorkflowStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkflowStep
	for _, s := range f.steps {
		if s.TemplateID == templateID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (f *fakeRepo) GetProgress(ctx context.Context, dossierID, stepID string) (*models.WorkflowProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.progress[progressKey(dossierID, stepID)]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) UpsertProgress(ctx context.Context, p *models.WorkflowProgress) error {
	if err := f.fail("UpsertProgress"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&p.ID)
	copied := *p
	f.progress[progressKey(p.DossierID, p.StepID)] = &copied
	return nil
}

func (f *fakeRepo) ListProgress(ctx context.Context, dossierID string, status *models.ProgressStatus) ([]*models.WorkflowProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkflowProgress
	for _, p := range f.progress {
		if p.DossierID != dossierID {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

func (f *fakeRepo) AppendHistory(ctx context.Context, entry *models.WorkflowHistory) error {
	if err := f.fail("AppendHistory"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&entry.ID)
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, dossierID string) ([]*models.WorkflowHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkflowHistory
	for _, h := range f.history {
		if h.DossierID == dossierID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) AppendRollback(ctx context.Context, entry *models.RollbackEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&entry.ID)
	f.rollbacks = append(f.rollbacks, entry)
	return nil
}

func (f *fakeRepo) ListRollbacks(ctx context.Context, dossierID, stepID string) ([]*models.RollbackEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RollbackEntry
	for _, r := range f.rollbacks {
		if r.DossierID == dossierID && r.StepID == stepID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	if err := f.fail("CreateTransfer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fillID(&transfer.ID)
	copied := *transfer
	f.transfers[transfer.ID] = &copied
	return nil
}

func (f *fakeRepo) UpdateTransfer(ctx context.Context, transfer *models.Transfer) error {
	if err := f.fail("UpdateTransfer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transfers[transfer.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *transfer
	f.transfers[transfer.ID] = &copied
	return nil
}

func (f *fakeRepo) ListTransfers(ctx context.Context, dossierID string) ([]*models.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transfer
	for _, t := range f.transfers {
		match := t.DossierID == dossierID
		if t.TargetDossierID != nil && *t.TargetDossierID == dossierID {
			match = true
		}
		if match {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

// fakeBridge records every payload it receives and optionally fails.
type fakeBridge struct {
	mu       sync.Mutex
	payloads []StepCompletionPayload
	err      error
}

func (b *fakeBridge) NotifyStepCompletion(ctx context.Context, payload StepCompletionPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return b.err
}

// fakeDocs records document generation triggers and optionally fails.
type fakeDocs struct {
	calls []map[string]any
	err   error
}

func (d *fakeDocs) Generate(ctx context.Context, dossierID string, config map[string]any) error {
	d.calls = append(d.calls, config)
	return d.err
}

// fakeEmailer records email triggers and optionally fails.
type fakeEmailer struct {
	calls []map[string]any
	err   error
}

func (e *fakeEmailer) Send(ctx context.Context, dossierID string, config map[string]any) error {
	e.calls = append(e.calls, config)
	return e.err
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

var errBoom = errors.New("boom")
