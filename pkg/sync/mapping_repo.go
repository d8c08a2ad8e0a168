package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrMappingNotFound = errors.New("identity mapping not found")

type MappingRepo interface {
	// Upsert stores the mapping for its (event, connection) pair. A retried
	// create task overwrites the existing row instead of duplicating it.
	Upsert(ctx context.Context, mapping IdentityMapping) (IdentityMapping, error)
	Get(ctx context.Context, id uuid.UUID) (IdentityMapping, error)
	GetByEventAndConnection(ctx context.Context, eventId, connectionId uuid.UUID) (IdentityMapping, error)
	GetByRemoteEvent(ctx context.Context, connectionId uuid.UUID, remoteEventId string) (IdentityMapping, error)
	ListForEvent(ctx context.Context, eventId uuid.UUID) ([]IdentityMapping, error)
	Touch(ctx context.Context, id uuid.UUID, syncedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MappingRepoImpl struct {
	db *sql.DB
}

func NewMappingRepo(db *sql.DB) *MappingRepoImpl {
	return &MappingRepoImpl{db: db}
}

const mappingColumns = `id, event_id, connection_id, remote_event_id, last_synced_at`

func (r *MappingRepoImpl) Upsert(ctx context.Context, mapping IdentityMapping) (IdentityMapping, error) {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}

	query := `INSERT INTO identity_mappings (id, event_id, connection_id, remote_event_id, last_synced_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (event_id, connection_id) DO UPDATE SET
				remote_event_id = EXCLUDED.remote_event_id,
				last_synced_at = EXCLUDED.last_synced_at`
	_, err := r.db.ExecContext(ctx, query,
		mapping.ID.String(),
		mapping.EventID.String(),
		mapping.ConnectionID.String(),
		mapping.RemoteEventID,
		mapping.LastSyncedAt.UnixMilli(),
	)
	if err != nil {
		err := fmt.Errorf("could not upsert identity mapping: %w", err)
		log.Error(err)
		return IdentityMapping{}, err
	}

	// On conflict the stored row keeps its original id.
	return r.GetByEventAndConnection(ctx, mapping.EventID, mapping.ConnectionID)
}

func (r *MappingRepoImpl) Get(ctx context.Context, id uuid.UUID) (IdentityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE id = $1`
	return scanMapping(r.db.QueryRowContext(ctx, query, id.String()))
}

func (r *MappingRepoImpl) GetByEventAndConnection(ctx context.Context, eventId, connectionId uuid.UUID) (IdentityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE event_id = $1 AND connection_id = $2`
	return scanMapping(r.db.QueryRowContext(ctx, query, eventId.String(), connectionId.String()))
}

func (r *MappingRepoImpl) GetByRemoteEvent(ctx context.Context, connectionId uuid.UUID, remoteEventId string) (IdentityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE connection_id = $1 AND remote_event_id = $2`
	return scanMapping(r.db.QueryRowContext(ctx, query, connectionId.String(), remoteEventId))
}

func (r *MappingRepoImpl) ListForEvent(ctx context.Context, eventId uuid.UUID) ([]IdentityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE event_id = $1`
	rows, err := r.db.QueryContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not query identity mappings: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var mappings []IdentityMapping
	for rows.Next() {
		mapping, err := scanMappingFrom(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}

func (r *MappingRepoImpl) Touch(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
	query := `UPDATE identity_mappings SET last_synced_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, syncedAt.UnixMilli(), id.String())
	if err != nil {
		err := fmt.Errorf("could not touch identity mapping: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *MappingRepoImpl) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM identity_mappings WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		err := fmt.Errorf("could not delete identity mapping: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func scanMapping(row *sql.Row) (IdentityMapping, error) {
	mapping, err := scanMappingFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IdentityMapping{}, ErrMappingNotFound
	}
	return mapping, err
}

func scanMappingFrom(row connScanner) (IdentityMapping, error) {
	var (
		idStr        string
		eventIdStr   string
		connIdStr    string
		syncedMillis int64
		mapping      IdentityMapping
	)
	err := row.Scan(&idStr, &eventIdStr, &connIdStr, &mapping.RemoteEventID, &syncedMillis)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Errorf("could not scan identity mapping row: %v", err)
		}
		return IdentityMapping{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return IdentityMapping{}, fmt.Errorf("invalid mapping id %q: %w", idStr, err)
	}
	eventId, err := uuid.Parse(eventIdStr)
	if err != nil {
		return IdentityMapping{}, fmt.Errorf("invalid event id %q: %w", eventIdStr, err)
	}
	connId, err := uuid.Parse(connIdStr)
	if err != nil {
		return IdentityMapping{}, fmt.Errorf("invalid connection id %q: %w", connIdStr, err)
	}
	mapping.ID = id
	mapping.EventID = eventId
	mapping.ConnectionID = connId
	mapping.LastSyncedAt = time.UnixMilli(syncedMillis)
	return mapping, nil
}
