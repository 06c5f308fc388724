package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Artifact is a generated website: markup, stylesheet and script, all plain text.
type Artifact struct {
	Markup string `json:"markup"`
	Styles string `json:"styles"`
	Script string `json:"script"`
}

func (a Artifact) IsEmpty() bool {
	return a.Markup == "" && a.Styles == "" && a.Script == ""
}

// Project is the mutable live document owned by a user.
// It is shared by the repository and HTTP layers.
type Project struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	CanvasSnapshot json.RawMessage `json:"canvas_snapshot"`
	LiveArtifact   Artifact        `json:"live_artifact"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Version is an immutable milestone of a project. Its number is unique and never reused.
type Version struct {
	ID                string          `json:"id"`
	ProjectID         string          `json:"project_id"`
	VersionNumber     int             `json:"version_number"`
	CanvasSnapshot    json.RawMessage `json:"canvas_snapshot"`
	GeneratedArtifact Artifact        `json:"generated_artifact"`
	CreatedAt         time.Time       `json:"created_at"`
}

// VersionSummary is the list-view projection of a Version.
type VersionSummary struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	VersionNumber int       `json:"version_number"`
	CreatedAt     time.Time `json:"created_at"`
}

func (v *Version) Summary() VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		ProjectID:     v.ProjectID,
		VersionNumber: v.VersionNumber,
		CreatedAt:     v.CreatedAt,
	}
}

// ProjectUpdate is a partial update of the live fields. Nil fields are left untouched.
type ProjectUpdate struct {
	Name           *string
	CanvasSnapshot json.RawMessage
	LiveArtifact   *Artifact
}

func (u ProjectUpdate) IsEmpty() bool {
	return u.Name == nil && u.CanvasSnapshot == nil && u.LiveArtifact == nil
}

// NullSnapshot is the stored form of an absent canvas.
var NullSnapshot = json.RawMessage("null")

// NormalizeSnapshot maps empty input to the JSON null document.
func NormalizeSnapshot(s json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(s)) == 0 {
		return NullSnapshot
	}
	return s
}
