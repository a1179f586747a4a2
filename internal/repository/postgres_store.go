package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sen667/JDE-sub004/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// CreateWorld inserts a world, generating an id when absent.
func (s *PostgresStore) CreateWorld(ctx context.Context, world *models.World) error {
	ensureID(&world.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO worlds (id, code, name) VALUES ($1, $2, $3)",
		world.ID, world.Code, world.Name)
	return err
}

func (s *PostgresStore) GetWorldByID(ctx context.Context, id string) (*models.World, error) {
	return s.scanWorld(s.db.QueryRow(ctx,
		"SELECT id, code, name, created_at FROM worlds WHERE id = $1", id))
}

func (s *PostgresStore) GetWorldByCode(ctx context.Context, code string) (*models.World, error) {
	return s.scanWorld(s.db.QueryRow(ctx,
		"SELECT id, code, name, created_at FROM worlds WHERE code = $1", code))
}

func (s *PostgresStore) scanWorld(row pgx.Row) (*models.World, error) {
	var w models.World
	if err := row.Scan(&w.ID, &w.Code, &w.Name, &w.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	ensureID(&user.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO users (id, email, full_name, role, world_id) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Email, user.FullName, user.Role, user.WorldID)
	return err
}

const userColumns = "id, email, full_name, role, world_id, created_at"

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email))
}

// SearchUsersByName matches full names case-insensitively by substring.
func (s *PostgresStore) SearchUsersByName(ctx context.Context, query string) ([]*models.User, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE full_name ILIKE '%' || $1 || '%' ORDER BY full_name",
		query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.WorldID, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateDossier(ctx context.Context, dossier *models.Dossier) error {
	ensureID(&dossier.ID)
	if dossier.Tags == nil {
		dossier.Tags = []string{}
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO dossiers (id, world_id, title, status, owner_id, tags) VALUES ($1, $2, $3, $4, $5, $6)",
		dossier.ID, dossier.WorldID, dossier.Title, dossier.Status, dossier.OwnerID, dossier.Tags)
	return err
}

func (s *PostgresStore) GetDossier(ctx context.Context, id string) (*models.Dossier, error) {
	var d models.Dossier
	err := s.db.QueryRow(ctx,
		"SELECT id, world_id, title, status, owner_id, tags, created_at, updated_at FROM dossiers WHERE id = $1", id).
		Scan(&d.ID, &d.WorldID, &d.Title, &d.Status, &d.OwnerID, &d.Tags, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateClientInfo(ctx context.Context, info *models.ClientInfo) error {
	ensureID(&info.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO client_infos (id, dossier_id, first_name, last_name, email, phone, address, birth_date) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		info.ID, info.DossierID, info.FirstName, info.LastName, info.Email, info.Phone, info.Address, info.BirthDate)
	return err
}

func (s *PostgresStore) GetClientInfoByDossier(ctx context.Context, dossierID string) (*models.ClientInfo, error) {
	var ci models.ClientInfo
	err := s.db.QueryRow(ctx,
		"SELECT id, dossier_id, first_name, last_name, email, phone, address, birth_date, created_at FROM client_infos WHERE dossier_id = $1", dossierID).
		Scan(&ci.ID, &ci.DossierID, &ci.FirstName, &ci.LastName, &ci.Email, &ci.Phone, &ci.Address, &ci.BirthDate, &ci.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ci, nil
}

func (s *PostgresStore) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	ensureID(&att.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO attachments (id, dossier_id, file_name, content_type, size_bytes, storage_key, uploaded_by) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		att.ID, att.DossierID, att.FileName, att.ContentType, att.SizeBytes, att.StorageKey, att.UploadedBy)
	return err
}

func (s *PostgresStore) ListAttachments(ctx context.Context, dossierID string) ([]*models.Attachment, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, dossier_id, file_name, content_type, size_bytes, storage_key, uploaded_by, created_at FROM attachments WHERE dossier_id = $1 ORDER BY created_at", dossierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []*models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.DossierID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.StorageKey, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		atts = append(atts, &a)
	}
	return atts, rows.Err()
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	ensureID(&appt.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO appointments (id, dossier_id, user_id, title, scheduled_at, location, notes) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		appt.ID, appt.DossierID, appt.UserID, appt.Title, appt.ScheduledAt, appt.Location, appt.Notes)
	return err
}

func (s *PostgresStore) ListAppointments(ctx context.Context, dossierID string) ([]*models.Appointment, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, dossier_id, user_id, title, scheduled_at, location, notes, created_at FROM appointments WHERE dossier_id = $1 ORDER BY scheduled_at", dossierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.DossierID, &a.UserID, &a.Title, &a.ScheduledAt, &a.Location, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}

func (s *PostgresStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	ensureID(&comment.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO comments (id, dossier_id, author_id, body, is_system) VALUES ($1, $2, $3, $4, $5)",
		comment.ID, comment.DossierID, comment.AuthorID, comment.Body, comment.IsSystem)
	return err
}

func (s *PostgresStore) ListComments(ctx context.Context, dossierID string) ([]*models.Comment, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, dossier_id, author_id, body, is_system, created_at FROM comments WHERE dossier_id = $1 ORDER BY created_at", dossierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.DossierID, &c.AuthorID, &c.Body, &c.IsSystem, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	ensureID(&n.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO notifications (id, user_id, title, body, dossier_id, read) VALUES ($1, $2, $3, $4, $5, $6)",
		n.ID, n.UserID, n.Title, n.Body, n.DossierID, n.Read)
	return err
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	ensureID(&task.ID)
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO tasks (id, world_id, dossier_id, assignee_id, title, description, due_date, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		task.ID, task.WorldID, task.DossierID, task.AssigneeID, task.Title, task.Description, task.DueDate, task.Status)
	return err
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	ensureID(&tpl.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflow_templates (id, world_id, name, version, is_active) VALUES ($1, $2, $3, $4, $5)",
		tpl.ID, tpl.WorldID, tpl.Name, tpl.Version, tpl.IsActive)
	return err
}

func (s *PostgresStore) GetActiveTemplate(ctx context.Context, worldID string) (*models.WorkflowTemplate, error) {
	var tpl models.WorkflowTemplate
	err := s.db.QueryRow(ctx,
		"SELECT id, world_id, name, version, is_active, created_at FROM workflow_templates WHERE world_id = $1 AND is_active", worldID).
		Scan(&tpl.ID, &tpl.WorldID, &tpl.Name, &tpl.Version, &tpl.IsActive, &tpl.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tpl, nil
}

const stepColumns = `id, template_id, name, step_number, requires_decision,
	next_step_id, decision_yes_next_step_id, decision_no_next_step_id,
	parallel_steps, auto_actions, metadata, created_at`

func (s *PostgresStore) CreateStep(ctx context.Context, step *models.WorkflowStep) error {
	ensureID(&step.ID)
	if step.ParallelSteps == nil {
		step.ParallelSteps = []string{}
	}
	if step.AutoActions == nil {
		step.AutoActions = []models.AutoAction{}
	}
	if step.Metadata == nil {
		step.Metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_steps (id, template_id, name, step_number, requires_decision,
			next_step_id, decision_yes_next_step_id, decision_no_next_step_id,
			parallel_steps, auto_actions, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		step.ID, step.TemplateID, step.Name, step.StepNumber, step.RequiresDecision,
		step.NextStepID, step.DecisionYesNextStepID, step.DecisionNoNextStepID,
		step.ParallelSteps, step.AutoActions, step.Metadata)
	return err
}

// SetStepLinks updates a step's successor references. Steps are inserted
// before their successors exist, so the seeder wires edges in a second pass.
func (s *PostgresStore) SetStepLinks(ctx context.Context, step *models.WorkflowStep) error {
	_, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET next_step_id = $2, decision_yes_next_step_id = $3,
			decision_no_next_step_id = $4, parallel_steps = $5 WHERE id = $1`,
		step.ID, step.NextStepID, step.DecisionYesNextStepID, step.DecisionNoNextStepID, step.ParallelSteps)
	return err
}

func (s *PostgresStore) GetStep(ctx context.Context, id string) (*models.WorkflowStep, error) {
	return scanStep(s.db.QueryRow(ctx,
		"SELECT "+stepColumns+" FROM workflow_steps WHERE id = $1", id))
}

func (s *PostgresStore) ListTemplateSteps(ctx context.Context, templateID string) ([]*models.WorkflowStep, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+stepColumns+" FROM workflow_steps WHERE template_id = $1 ORDER BY step_number", templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(row pgx.Row) (*models.WorkflowStep, error) {
	var st models.WorkflowStep
	err := row.Scan(&st.ID, &st.TemplateID, &st.Name, &st.StepNumber, &st.RequiresDecision,
		&st.NextStepID, &st.DecisionYesNextStepID, &st.DecisionNoNextStepID,
		&st.ParallelSteps, &st.AutoActions, &st.Metadata, &st.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

const progressColumns = `id, dossier_id, step_id, status, started_at, completed_at,
	completed_by, decision, notes, form_data, created_at, updated_at`

func (s *PostgresStore) GetProgress(ctx context.Context, dossierID, stepID string) (*models.WorkflowProgress, error) {
	return scanProgress(s.db.QueryRow(ctx,
		"SELECT "+progressColumns+" FROM workflow_progress WHERE dossier_id = $1 AND step_id = $2",
		dossierID, stepID))
}

// UpsertProgress writes a progress row keyed on (dossier, step). Last write
// wins; there is deliberately no status guard here (see the concurrency
// notes in DESIGN.md).
func (s *PostgresStore) UpsertProgress(ctx context.Context, p *models.WorkflowProgress) error {
	ensureID(&p.ID)
	if p.FormData == nil {
		p.FormData = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_progress (id, dossier_id, step_id, status, started_at,
			completed_at, completed_by, decision, notes, form_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (dossier_id, step_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = COALESCE(workflow_progress.started_at, EXCLUDED.started_at),
			completed_at = EXCLUDED.completed_at,
			completed_by = EXCLUDED.completed_by,
			decision = EXCLUDED.decision,
			notes = EXCLUDED.notes,
			form_data = EXCLUDED.form_data,
			updated_at = now()`,
		p.ID, p.DossierID, p.StepID, p.Status, p.StartedAt,
		p.CompletedAt, p.CompletedBy, p.Decision, p.Notes, p.FormData)
	return err
}

func (s *PostgresStore) ListProgress(ctx context.Context, dossierID string, status *models.ProgressStatus) ([]*models.WorkflowProgress, error) {
	query := "SELECT " + progressColumns + " FROM workflow_progress WHERE dossier_id = $1"
	args := []any{dossierID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.WorkflowProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProgress(row pgx.Row) (*models.WorkflowProgress, error) {
	var p models.WorkflowProgress
	err := row.Scan(&p.ID, &p.DossierID, &p.StepID, &p.Status, &p.StartedAt, &p.CompletedAt,
		&p.CompletedBy, &p.Decision, &p.Notes, &p.FormData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *models.WorkflowHistory) error {
	ensureID(&entry.ID)
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflow_history (id, dossier_id, step_id, next_step_id, decision, actor_id, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		entry.ID, entry.DossierID, entry.StepID, entry.NextStepID, entry.Decision, entry.ActorID, entry.Metadata)
	return err
}

func (s *PostgresStore) ListHistory(ctx context.Context, dossierID string) ([]*models.WorkflowHistory, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, dossier_id, step_id, next_step_id, decision, actor_id, metadata, created_at FROM workflow_history WHERE dossier_id = $1 ORDER BY created_at", dossierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.WorkflowHistory
	for rows.Next() {
		var h models.WorkflowHistory
		if err := rows.Scan(&h.ID, &h.DossierID, &h.StepID, &h.NextStepID, &h.Decision, &h.ActorID, &h.Metadata, &h.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) AppendRollback(ctx context.Context, entry *models.RollbackEntry) error {
	ensureID(&entry.ID)
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflow_rollbacks (id, dossier_id, step_id, from_status, to_status, reason, actor_id) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		entry.ID, entry.DossierID, entry.StepID, entry.FromStatus, entry.ToStatus, entry.Reason, entry.ActorID)
	return err
}

func (s *PostgresStore) ListRollbacks(ctx context.Context, dossierID, stepID string) ([]*models.RollbackEntry, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, dossier_id, step_id, from_status, to_status, reason, actor_id, created_at FROM workflow_rollbacks WHERE dossier_id = $1 AND step_id = $2 ORDER BY created_at", dossierID, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.RollbackEntry
	for rows.Next() {
		var r models.RollbackEntry
		if err := rows.Scan(&r.ID, &r.DossierID, &r.StepID, &r.FromStatus, &r.ToStatus, &r.Reason, &r.ActorID, &r.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &r)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	ensureID(&transfer.ID)
	if transfer.Metadata == nil {
		transfer.Metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO transfers (id, dossier_id, source_world_id, target_world_id,
			transfer_type, transfer_status, initiated_by, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		transfer.ID, transfer.DossierID, transfer.SourceWorldID, transfer.TargetWorldID,
		transfer.TransferType, transfer.Status, transfer.InitiatedBy, transfer.Metadata)
	return err
}

// UpdateTransfer advances a transfer to its terminal state. Transfers are
// never deleted.
func (s *PostgresStore) UpdateTransfer(ctx context.Context, transfer *models.Transfer) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE transfers SET transfer_status = $2, target_dossier_id = $3,
			error_message = $4, metadata = $5, updated_at = now() WHERE id = $1`,
		transfer.ID, transfer.Status, transfer.TargetDossierID, transfer.ErrorMessage, transfer.Metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %s: %w", transfer.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTransfers(ctx context.Context, dossierID string) ([]*models.Transfer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, dossier_id, source_world_id, target_world_id, transfer_type,
			transfer_status, target_dossier_id, error_message, initiated_by, metadata,
			created_at, updated_at
		 FROM transfers WHERE dossier_id = $1 OR target_dossier_id = $1
		 ORDER BY created_at DESC`, dossierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.DossierID, &t.SourceWorldID, &t.TargetWorldID, &t.TransferType,
			&t.Status, &t.TargetDossierID, &t.ErrorMessage, &t.InitiatedBy, &t.Metadata,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}
