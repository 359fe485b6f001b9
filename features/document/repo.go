package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (user_id, filename, doc_type, status, asset_url, storage_path, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		doc.UserID, doc.Filename, doc.DocType, doc.Status, doc.AssetURL, doc.StoragePath, doc.ContentHash,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, userID, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, user_id, filename, doc_type, status, asset_url, storage_path, created_at, updated_at
		FROM documents WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&doc.ID, &doc.UserID, &doc.Filename, &doc.DocType, &doc.Status, &doc.AssetURL, &doc.StoragePath, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context, userID string) ([]Document, error) {
	query := `SELECT id, user_id, filename, doc_type, status, asset_url, created_at, updated_at
		FROM documents WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.DocType, &doc.Status, &doc.AssetURL, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, userID, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE user_id = $1 AND content_hash = $2 AND deleted_at IS NULL)`
	err := r.db.QueryRowContext(ctx, query, userID, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// SetStatus satisfies the ingestion worker's status store.
func (r *PostgresRepo) SetStatus(ctx context.Context, documentID, status string) error {
	return r.UpdateStatus(ctx, documentID, status)
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE documents SET deleted_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE user_id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}
