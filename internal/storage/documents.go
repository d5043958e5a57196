package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkravets/agenda/internal/apperr"
)

func SaveDocument(ctx context.Context, q Querier, doc Document) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, title, content, source, created_at)
		VALUES (?, (SELECT tenant_id FROM session_tenant), ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Source,
		doc.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func GetDocument(ctx context.Context, q Querier, id string) (Document, error) {
	var d Document
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, title, content, source, created_at
		FROM documents
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Content, &d.Source, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("%w: document %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Document{}, err
	}
	d.CreatedAt = parseTimestamp(createdAt)
	return d, nil
}

func ListDocuments(ctx context.Context, q Querier, limit int) ([]Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, content, source, created_at
		FROM documents
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTimestamp(createdAt)
		result = append(result, d)
	}
	return result, rows.Err()
}
