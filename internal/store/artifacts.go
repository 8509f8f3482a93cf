// ABOUTME: Content-addressed artifact storage keyed by project and artifact id
// ABOUTME: Digests use the OCI sha256 form and are verified on read

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
)

// PutArtifact stores content under (projectID, artifactID), replacing any
// previous version, and returns the stored artifact with its digest.
func (s *SQLiteStore) PutArtifact(ctx context.Context, projectID, artifactID string, content []byte) (*Artifact, error) {
	a := &Artifact{
		ProjectID:  projectID,
		ArtifactID: artifactID,
		Digest:     digest.FromBytes(content),
		Content:    append([]byte(nil), content...),
		UpdatedAt:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (project_id, artifact_id, digest, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, artifact_id) DO UPDATE SET
			digest = excluded.digest,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, a.ProjectID, a.ArtifactID, a.Digest.String(), string(a.Content), a.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("upserting artifact: %w", err)
	}

	s.logger.Debug("stored artifact",
		"project_id", projectID,
		"artifact_id", artifactID,
		"digest", a.Digest,
	)
	return a, nil
}

// GetArtifact returns the artifact or ErrNotFound. Content that no longer
// matches its digest yields ErrDigestMismatch.
func (s *SQLiteStore) GetArtifact(ctx context.Context, projectID, artifactID string) (*Artifact, error) {
	var a Artifact
	var dgst, content, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, artifact_id, digest, content, updated_at
		FROM artifacts
		WHERE project_id = ? AND artifact_id = ?
	`, projectID, artifactID).Scan(&a.ProjectID, &a.ArtifactID, &dgst, &content, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact: %w", err)
	}

	a.Digest, err = digest.Parse(dgst)
	if err != nil {
		return nil, fmt.Errorf("parsing artifact digest: %w", err)
	}
	a.Content = []byte(content)
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	verifier := a.Digest.Verifier()
	if _, err := verifier.Write(a.Content); err != nil {
		return nil, fmt.Errorf("verifying artifact: %w", err)
	}
	if !verifier.Verified() {
		return nil, fmt.Errorf("artifact %s/%s: %w", projectID, artifactID, ErrDigestMismatch)
	}
	return &a, nil
}
