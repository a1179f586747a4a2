package models

import (
	"fmt"
	"strings"
	"time"
)

// TransferStatus represents the state of a transfer attempt.
type TransferStatus string

const (
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
)

// Transfer is one row per transfer attempt and the single source of truth
// for its outcome. Rows are never deleted, only advanced to a terminal
// state. TargetDossierID is set only on success, ErrorMessage only on
// failure; Metadata accumulates replication counts.
type Transfer struct {
	ID              string         `json:"id"`
	DossierID       string         `json:"dossier_id"`
	SourceWorldID   string         `json:"source_world_id"`
	TargetWorldID   string         `json:"target_world_id"`
	TransferType    string         `json:"transfer_type"`
	Status          TransferStatus `json:"transfer_status"`
	TargetDossierID *string        `json:"target_dossier_id,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	InitiatedBy     string         `json:"initiated_by"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TransferType derives the canonical transfer type string from the source
// and target world codes, e.g. "jde_to_jdmo".
func TransferType(sourceCode, targetCode string) string {
	return strings.ToLower(fmt.Sprintf("%s_to_%s", sourceCode, targetCode))
}
