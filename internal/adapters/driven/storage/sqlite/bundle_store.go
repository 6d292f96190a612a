package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// bundleStore implements driven.BundleStore.
type bundleStore struct {
	store *Store
}

var _ driven.BundleStore = (*bundleStore)(nil)

// Save writes every artifact of the bundle and moves the current marker
// in a single transaction.
func (s *bundleStore) Save(ctx context.Context, bundle *domain.IndexBundle) error {
	if bundle == nil || bundle.Generation == "" {
		return domain.ErrInvalidInput
	}
	if len(bundle.Vectors) > 0 && len(bundle.Vectors) != len(bundle.Records) {
		return fmt.Errorf("%w: %d vectors for %d records", domain.ErrInvalidInput,
			len(bundle.Vectors), len(bundle.Records))
	}

	lexicalJSON, err := json.Marshal(bundle.Lexical)
	if err != nil {
		return fmt.Errorf("marshalling lexical snapshot: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "UPDATE generations SET is_current = 0 WHERE is_current = 1"); err != nil {
		return fmt.Errorf("clearing current generation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO generations (id, checksum, created_at, embedding_model, dimensions, record_count, is_current)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, bundle.Generation, bundle.Checksum, formatTime(bundle.CreatedAt),
		bundle.EmbeddingModel, bundle.Dimensions, len(bundle.Records))
	if err != nil {
		return fmt.Errorf("saving generation: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generation_records (generation_id, ordinal, evidence_id, record)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer recStmt.Close()

	for i, rec := range bundle.Records {
		recJSON, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling record %s: %w", rec.ID, err)
		}
		if _, err := recStmt.ExecContext(ctx, bundle.Generation, i, rec.ID, string(recJSON)); err != nil {
			return fmt.Errorf("saving record %s: %w", rec.ID, err)
		}
	}

	vecStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generation_vectors (generation_id, ordinal, vector)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer vecStmt.Close()

	for i, vec := range bundle.Vectors {
		if _, err := vecStmt.ExecContext(ctx, bundle.Generation, i, float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("saving vector %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO generation_lexical (generation_id, snapshot) VALUES (?, ?)
	`, bundle.Generation, string(lexicalJSON))
	if err != nil {
		return fmt.Errorf("saving lexical snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Latest loads the current generation inside one read transaction.
func (s *bundleStore) Latest(ctx context.Context) (*domain.IndexBundle, error) {
	tx, err := s.store.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `
		SELECT id, checksum, created_at, embedding_model, dimensions, record_count
		FROM generations WHERE is_current = 1
		ORDER BY created_at DESC LIMIT 1
	`)
	info, err := scanInfo(row)
	if err != nil {
		return nil, err
	}

	bundle := &domain.IndexBundle{
		Generation:     info.Generation,
		Checksum:       info.Checksum,
		CreatedAt:      info.CreatedAt,
		EmbeddingModel: info.EmbeddingModel,
		Dimensions:     info.Dimensions,
	}

	if bundle.Records, err = loadRecords(ctx, tx, info.Generation); err != nil {
		return nil, err
	}
	if bundle.Vectors, err = loadVectors(ctx, tx, info.Generation); err != nil {
		return nil, err
	}

	var snapshot string
	err = tx.QueryRowContext(ctx,
		"SELECT snapshot FROM generation_lexical WHERE generation_id = ?", info.Generation,
	).Scan(&snapshot)
	if err != nil {
		return nil, fmt.Errorf("loading lexical snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &bundle.Lexical); err != nil {
		return nil, fmt.Errorf("unmarshalling lexical snapshot: %w", err)
	}

	if len(bundle.Records) != info.Records {
		return nil, fmt.Errorf("%w: generation %s has %d of %d records",
			domain.ErrStaleIndex, info.Generation, len(bundle.Records), info.Records)
	}

	return bundle, nil
}

// List describes stored generations, newest first.
func (s *bundleStore) List(ctx context.Context) ([]domain.IndexInfo, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, checksum, created_at, embedding_model, dimensions, record_count
		FROM generations ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying generations: %w", err)
	}
	defer rows.Close()

	var infos []domain.IndexInfo //nolint:prealloc // size unknown from query
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating generations: %w", err)
	}
	return infos, nil
}

// Close closes the underlying database.
func (s *bundleStore) Close() error {
	return s.store.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (*domain.IndexInfo, error) {
	var info domain.IndexInfo
	var createdAt string
	err := row.Scan(&info.Generation, &info.Checksum, &createdAt,
		&info.EmbeddingModel, &info.Dimensions, &info.Records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning generation: %w", err)
	}
	info.CreatedAt = parseTime(createdAt)
	return &info, nil
}

func loadRecords(ctx context.Context, tx *sql.Tx, generation string) ([]domain.EvidenceRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT evidence_id, record FROM generation_records
		WHERE generation_id = ? ORDER BY ordinal
	`, generation)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []domain.EvidenceRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id, recJSON string
		if err := rows.Scan(&id, &recJSON); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec domain.EvidenceRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, fmt.Errorf("unmarshalling record %s: %w", id, err)
		}
		if rec.ID != id {
			return nil, fmt.Errorf("%w: record %s stored under %s", domain.ErrStaleIndex, rec.ID, id)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func loadVectors(ctx context.Context, tx *sql.Tx, generation string) ([][]float32, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT vector FROM generation_vectors
		WHERE generation_id = ? ORDER BY ordinal
	`, generation)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var vectors [][]float32 //nolint:prealloc // size unknown from query
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		vectors = append(vectors, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return vectors, nil
}
