package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrConnectionNotFound = errors.New("connection not found")

type ConnectionRepo interface {
	Upsert(ctx context.Context, conn Connection) (Connection, error)
	Get(ctx context.Context, id uuid.UUID) (Connection, error)
	GetForUser(ctx context.Context, userId int) (Connection, error)
	ListEnabled(ctx context.Context) ([]Connection, error)
	ListEnabledForUsers(ctx context.Context, userIds []int) ([]Connection, error)
	UpdateOAuthCredentials(ctx context.Context, id uuid.UUID, creds OAuthCredentials) error
	SaveSyncState(ctx context.Context, id uuid.UUID, syncToken string, lastSyncedAt time.Time) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ConnectionRepoImpl struct {
	db *sql.DB
}

func NewConnectionRepo(db *sql.DB) *ConnectionRepoImpl {
	return &ConnectionRepoImpl{db: db}
}

const connectionColumns = `id, user_id, calendar_id, kind, credentials_file, access_token, refresh_token, token_expires_at, enabled, sync_token, last_synced_at`

func (r *ConnectionRepoImpl) Upsert(ctx context.Context, conn Connection) (Connection, error) {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}

	var (
		credentialsFile string
		accessToken     string
		refreshToken    string
		tokenExpiresAt  sql.NullInt64
	)
	switch creds := conn.Credentials.(type) {
	case ServiceAccountCredentials:
		credentialsFile = creds.CredentialsFile
	case OAuthCredentials:
		accessToken = creds.AccessToken
		refreshToken = creds.RefreshToken
		tokenExpiresAt = sql.NullInt64{Int64: creds.Expiry.UnixMilli(), Valid: true}
	default:
		return Connection{}, fmt.Errorf("unsupported credential kind %T", conn.Credentials)
	}

	query := `INSERT INTO calendar_connections
				(id, user_id, calendar_id, kind, credentials_file, access_token, refresh_token, token_expires_at, enabled, sync_token, last_synced_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL)
			  ON CONFLICT (user_id) DO UPDATE SET
				calendar_id = EXCLUDED.calendar_id,
				kind = EXCLUDED.kind,
				credentials_file = EXCLUDED.credentials_file,
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				token_expires_at = EXCLUDED.token_expires_at,
				enabled = EXCLUDED.enabled`
	_, err := r.db.ExecContext(ctx, query,
		conn.ID.String(),
		conn.UserID,
		conn.CalendarID,
		string(conn.Credentials.Kind()),
		credentialsFile,
		accessToken,
		refreshToken,
		tokenExpiresAt,
		conn.Enabled,
	)
	if err != nil {
		err := fmt.Errorf("could not upsert connection: %w", err)
		log.Error(err)
		return Connection{}, err
	}

	// Re-read: on conflict the stored row keeps its original id and cursor.
	return r.GetForUser(ctx, conn.UserID)
}

func (r *ConnectionRepoImpl) Get(ctx context.Context, id uuid.UUID) (Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE id = $1`
	return scanConnection(r.db.QueryRowContext(ctx, query, id.String()))
}

func (r *ConnectionRepoImpl) GetForUser(ctx context.Context, userId int) (Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE user_id = $1`
	return scanConnection(r.db.QueryRowContext(ctx, query, userId))
}

func (r *ConnectionRepoImpl) ListEnabled(ctx context.Context) ([]Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE enabled = TRUE ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query enabled connections: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (r *ConnectionRepoImpl) ListEnabledForUsers(ctx context.Context, userIds []int) ([]Connection, error) {
	if len(userIds) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(userIds))
	args := make([]any, len(userIds))
	for i, id := range userIds {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections
			  WHERE enabled = TRUE AND user_id IN (` + strings.Join(placeholders, ", ") + `)
			  ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query enabled connections for users: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (r *ConnectionRepoImpl) UpdateOAuthCredentials(ctx context.Context, id uuid.UUID, creds OAuthCredentials) error {
	query := `UPDATE calendar_connections
			  SET access_token = $1, refresh_token = $2, token_expires_at = $3
			  WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query,
		creds.AccessToken, creds.RefreshToken, creds.Expiry.UnixMilli(), id.String())
	if err != nil {
		err := fmt.Errorf("could not update connection credentials: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *ConnectionRepoImpl) SaveSyncState(ctx context.Context, id uuid.UUID, syncToken string, lastSyncedAt time.Time) error {
	query := `UPDATE calendar_connections SET sync_token = $1, last_synced_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, syncToken, lastSyncedAt.UnixMilli(), id.String())
	if err != nil {
		err := fmt.Errorf("could not save sync state: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *ConnectionRepoImpl) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `UPDATE calendar_connections SET enabled = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, enabled, id.String())
	if err != nil {
		err := fmt.Errorf("could not toggle connection: %w", err)
		log.Error(err)
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// Delete removes the connection. Identity mappings cascade away with it.
func (r *ConnectionRepoImpl) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM calendar_connections WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		err := fmt.Errorf("could not delete connection: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func scanConnection(row *sql.Row) (Connection, error) {
	conn, err := scanConnectionFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

func collectConnections(rows *sql.Rows) ([]Connection, error) {
	var conns []Connection
	for rows.Next() {
		conn, err := scanConnectionFrom(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

type connScanner interface {
	Scan(dest ...any) error
}

func scanConnectionFrom(row connScanner) (Connection, error) {
	var (
		idStr           string
		kind            string
		credentialsFile string
		accessToken     string
		refreshToken    string
		tokenExpiresAt  sql.NullInt64
		syncToken       sql.NullString
		lastSyncedAt    sql.NullInt64
		conn            Connection
	)
	err := row.Scan(&idStr, &conn.UserID, &conn.CalendarID, &kind, &credentialsFile,
		&accessToken, &refreshToken, &tokenExpiresAt, &conn.Enabled, &syncToken, &lastSyncedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Errorf("could not scan connection row: %v", err)
		}
		return Connection{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Connection{}, fmt.Errorf("invalid connection id %q: %w", idStr, err)
	}
	conn.ID = id

	switch CredentialKind(kind) {
	case KindServiceAccount:
		conn.Credentials = ServiceAccountCredentials{CredentialsFile: credentialsFile}
	case KindOAuth:
		creds := OAuthCredentials{AccessToken: accessToken, RefreshToken: refreshToken}
		if tokenExpiresAt.Valid {
			creds.Expiry = time.UnixMilli(tokenExpiresAt.Int64)
		}
		conn.Credentials = creds
	default:
		return Connection{}, fmt.Errorf("unknown connection kind %q", kind)
	}

	if syncToken.Valid {
		conn.SyncToken = syncToken.String
	}
	if lastSyncedAt.Valid {
		conn.LastSyncedAt = time.UnixMilli(lastSyncedAt.Int64)
	}
	return conn, nil
}
