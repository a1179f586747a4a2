package services

import (
	"context"
)

// LogDocumentGenerator satisfies DocumentGenerator by recording the trigger.
// Document generation itself is an external collaborator; only the trigger
// contract lives in this service, so the default wiring just logs it.
type LogDocumentGenerator struct {
	logger Logger
}

// NewLogDocumentGenerator creates a new LogDocumentGenerator.
func NewLogDocumentGenerator(logger Logger) *LogDocumentGenerator {
	return &LogDocumentGenerator{logger: logger}
}

func (g *LogDocumentGenerator) Generate(ctx context.Context, dossierID string, config map[string]any) error {
	template, _ := config["template"].(string)
	g.logger.Info("document generation triggered", "dossier_id", dossierID, "template", template)
	return nil
}

// LogEmailSender satisfies EmailSender by recording the trigger. Same
// contract-only arrangement as LogDocumentGenerator.
type LogEmailSender struct {
	logger Logger
}

// NewLogEmailSender creates a new LogEmailSender.
func NewLogEmailSender(logger Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (e *LogEmailSender) Send(ctx context.Context, dossierID string, config map[string]any) error {
	templateName, _ := config["template"].(string)
	recipient, _ := config["recipient"].(string)
	e.logger.Info("email send triggered", "dossier_id", dossierID, "template", templateName, "recipient", recipient)
	return nil
}
