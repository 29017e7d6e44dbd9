package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

// GetProject loads the full project aggregate. Structured fields live in
// JSONB columns; the editor owns their shape, the render side only reads.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT
			id, title, theme_id, status, settings, timeline, audio,
			narration, intro_outro, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	project := &models.Project{}
	var settings, timeline, audio, narration, introOutro []byte
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Title, &project.ThemeID, &project.Status,
		&settings, &timeline, &audio, &narration, &introOutro,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	for _, col := range []struct {
		name string
		data []byte
		dst  interface{}
	}{
		{"settings", settings, &project.Settings},
		{"timeline", timeline, &project.Timeline},
		{"audio", audio, &project.Audio},
		{"narration", narration, &project.Narration},
		{"intro_outro", introOutro, &project.IntroOutro},
	} {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode project %s: %w", col.name, err)
		}
	}

	return project, nil
}

// SetProjectStatus moves the project through its render lifecycle. outputURL
// is only written on completion; pass empty otherwise.
func (db *DB) SetProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus, outputURL string) error {
	var err error
	if outputURL != "" {
		_, err = db.ExecContext(ctx, `
			UPDATE projects
			SET status = $2, output_url = $3, updated_at = NOW()
			WHERE id = $1
		`, id, status, outputURL)
	} else {
		_, err = db.ExecContext(ctx, `
			UPDATE projects
			SET status = $2, updated_at = NOW()
			WHERE id = $1
		`, id, status)
	}
	if err != nil {
		return fmt.Errorf("failed to set project status: %w", err)
	}
	return nil
}
