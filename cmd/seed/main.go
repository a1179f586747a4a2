package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sen667/JDE-sub004/internal/config"
	"github.com/Sen667/JDE-sub004/internal/logging"
	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/internal/services"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// Seeds the three worlds, a few users per world and one active workflow
// template each. The JDE template exercises every edge type (linear,
// decision branch, parallel); JDMO and DBCS open with an auto-complete
// reception step so transferred dossiers fast-forward past it.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	// Apply schema (idempotent, everything is CREATE IF NOT EXISTS)
	if _, err := pool.Exec(ctx, repository.Schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info("Schema applied")

	store := repository.NewPostgresStore(pool)

	// 1. Ensure worlds exist
	worlds := map[string]string{
		models.WorldJDE:  "Juridical Dossier Engine",
		models.WorldJDMO: "Juridical Dossier Mid Office",
		models.WorldDBCS: "Dossier Back-office Case System",
	}
	worldIDs := make(map[string]string)
	for code, name := range worlds {
		w, err := store.GetWorldByCode(ctx, code)
		if err == nil {
			logger.Info("Found existing world", "code", code, "id", w.ID)
			worldIDs[code] = w.ID
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Fatalf("Failed to look up world %s: %v", code, err)
		}
		w = &models.World{Code: code, Name: name}
		if err := store.CreateWorld(ctx, w); err != nil {
			log.Fatalf("Failed to create world %s: %v", code, err)
		}
		logger.Info("Seeded world", "code", code, "id", w.ID)
		worldIDs[code] = w.ID
	}

	// 2. Ensure users exist (dev bypass resolves cfg.DevUserEmail, so seed it)
	devEmail := cfg.DevUserEmail
	if devEmail == "" {
		devEmail = "dev@localhost"
	}
	users := []struct {
		Email    string
		FullName string
		Role     string
		World    string
	}{
		{devEmail, "Dev User", "admin", models.WorldJDE},
		{"alice.dupont@example.org", "Alice Dupont", "case_handler", models.WorldJDE},
		{"bart.vermeulen@example.org", "Bart Vermeulen", "case_handler", models.WorldJDMO},
		{"carla.janssens@example.org", "Carla Janssens", "reviewer", models.WorldDBCS},
	}
	for _, u := range users {
		if existing, err := store.GetUserByEmail(ctx, u.Email); err == nil {
			logger.Info("Skipping existing user", "email", u.Email, "id", existing.ID)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			log.Fatalf("Failed to look up user %s: %v", u.Email, err)
		}
		worldID := worldIDs[u.World]
		user := &models.User{
			Email:    u.Email,
			FullName: u.FullName,
			Role:     u.Role,
			WorldID:  &worldID,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			log.Fatalf("Failed to create user %s: %v", u.Email, err)
		}
		logger.Info("Seeded user", "email", u.Email, "id", user.ID)
	}

	// 3. Workflow templates, one active per world
	seedJDETemplate(ctx, store, logger, worldIDs[models.WorldJDE])
	seedReceptionTemplate(ctx, store, logger, worldIDs[models.WorldJDMO], "JDMO Intake", models.WorldJDE)
	seedReceptionTemplate(ctx, store, logger, worldIDs[models.WorldDBCS], "DBCS Intake", models.WorldJDMO)

	logger.Info("Seeding complete!")
}

func templateExists(ctx context.Context, store *repository.PostgresStore, worldID string) bool {
	_, err := store.GetActiveTemplate(ctx, worldID)
	return err == nil
}

// seedJDETemplate builds the five step JDE graph:
//
//	intake -> review -(yes)-> approval -> closing
//	                 -(no)--> rework ---> closing
//	intake also activates notify-owner in parallel.
func seedJDETemplate(ctx context.Context, store *repository.PostgresStore, logger *logging.Logger, worldID string) {
	if templateExists(ctx, store, worldID) {
		logger.Info("Skipping existing template", "world_id", worldID)
		return
	}

	tpl := &models.WorkflowTemplate{
		WorldID:  worldID,
		Name:     "JDE Case Handling",
		Version:  1,
		IsActive: true,
	}
	if err := store.CreateTemplate(ctx, tpl); err != nil {
		log.Fatalf("Failed to create JDE template: %v", err)
	}

	ids := make(map[string]string)
	for _, name := range []string{"intake", "review", "approval", "rework", "closing", "notify-owner"} {
		ids[name] = uuid.New().String()
	}

	steps := []*models.WorkflowStep{
		{
			ID:            ids["intake"],
			TemplateID:    tpl.ID,
			Name:          "Intake",
			StepNumber:    1,
			NextStepID:    ptr(ids["review"]),
			ParallelSteps: []string{ids["notify-owner"]},
			AutoActions: []models.AutoAction{
				{Type: models.ActionCreateNotification, Config: map[string]any{
					"title":   "Dossier intake registered",
					"message": "A new dossier entered case handling.",
				}},
			},
		},
		{
			ID:                    ids["review"],
			TemplateID:            tpl.ID,
			Name:                  "Review",
			StepNumber:            2,
			RequiresDecision:      true,
			NextStepID:            ptr(ids["approval"]),
			DecisionYesNextStepID: ptr(ids["approval"]),
			DecisionNoNextStepID:  ptr(ids["rework"]),
		},
		{
			ID:         ids["approval"],
			TemplateID: tpl.ID,
			Name:       "Approval",
			StepNumber: 3,
			NextStepID: ptr(ids["closing"]),
			AutoActions: []models.AutoAction{
				{Type: models.ActionGenerateDocument, Config: map[string]any{
					"template": "approval-letter",
				}},
				{Type: models.ActionSendEmail, Config: map[string]any{
					"template":  "approval-confirmation",
					"recipient": "owner",
				}},
			},
		},
		{
			ID:         ids["rework"],
			TemplateID: tpl.ID,
			Name:       "Rework",
			StepNumber: 4,
			NextStepID: ptr(ids["closing"]),
			AutoActions: []models.AutoAction{
				{Type: models.ActionCreateTask, Config: map[string]any{
					"title":    "Rework dossier",
					"assignee": "Alice",
				}},
			},
		},
		{
			ID:         ids["closing"],
			TemplateID: tpl.ID,
			Name:       "Closing",
			StepNumber: 5,
		},
		{
			ID:         ids["notify-owner"],
			TemplateID: tpl.ID,
			Name:       "Notify Owner",
			StepNumber: 6,
			AutoActions: []models.AutoAction{
				{Type: models.ActionCreateNotification, Config: map[string]any{
					"title":   "Dossier assigned",
					"message": "You own a dossier that entered case handling.",
				}},
			},
		},
	}

	// Two passes: insert nodes without edges first so the FK constraints on
	// next/decision step ids are satisfiable regardless of insert order.
	for _, s := range steps {
		bare := *s
		bare.NextStepID = nil
		bare.DecisionYesNextStepID = nil
		bare.DecisionNoNextStepID = nil
		bare.ParallelSteps = nil
		if err := store.CreateStep(ctx, &bare); err != nil {
			log.Fatalf("Failed to create step %s: %v", s.Name, err)
		}
	}
	for _, s := range steps {
		if err := store.SetStepLinks(ctx, s); err != nil {
			log.Fatalf("Failed to link step %s: %v", s.Name, err)
		}
	}

	if err := services.ValidateStepGraph(steps); err != nil {
		log.Fatalf("JDE template has an invalid step graph: %v", err)
	}
	logger.Info("Seeded template", "name", tpl.Name, "id", tpl.ID, "steps", len(steps))
}

// seedReceptionTemplate builds the two step target-world graph whose first
// step auto-completes on reception of a transfer.
func seedReceptionTemplate(ctx context.Context, store *repository.PostgresStore, logger *logging.Logger, worldID, name, sourceCode string) {
	if templateExists(ctx, store, worldID) {
		logger.Info("Skipping existing template", "world_id", worldID)
		return
	}

	tpl := &models.WorkflowTemplate{
		WorldID:  worldID,
		Name:     name,
		Version:  1,
		IsActive: true,
	}
	if err := store.CreateTemplate(ctx, tpl); err != nil {
		log.Fatalf("Failed to create template %s: %v", name, err)
	}

	receptionID := uuid.New().String()
	handlingID := uuid.New().String()

	steps := []*models.WorkflowStep{
		{
			ID:         receptionID,
			TemplateID: tpl.ID,
			Name:       "Reception",
			StepNumber: 1,
			NextStepID: ptr(handlingID),
			Metadata:   map[string]any{"auto_complete": true, "expected_source": sourceCode},
			AutoActions: []models.AutoAction{
				{Type: models.ActionCreateNotification, Config: map[string]any{
					"title":   "Dossier received",
					"message": "A dossier was transferred into this world.",
				}},
			},
		},
		{
			ID:         handlingID,
			TemplateID: tpl.ID,
			Name:       "Handling",
			StepNumber: 2,
		},
	}

	for _, s := range steps {
		bare := *s
		bare.NextStepID = nil
		if err := store.CreateStep(ctx, &bare); err != nil {
			log.Fatalf("Failed to create step %s: %v", s.Name, err)
		}
	}
	for _, s := range steps {
		if err := store.SetStepLinks(ctx, s); err != nil {
			log.Fatalf("Failed to link step %s: %v", s.Name, err)
		}
	}

	if err := services.ValidateStepGraph(steps); err != nil {
		log.Fatalf("Template %s has an invalid step graph: %v", name, err)
	}
	logger.Info("Seeded template", "name", tpl.Name, "id", tpl.ID, "steps", len(steps))
}

func ptr(s string) *string { return &s }
