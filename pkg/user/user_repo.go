package user

import (
	"context"
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"
)

var ErrUserNotFound = errors.New("user not found")

type Repo interface {
	CreateUser(ctx context.Context, user User) (int, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) CreateUser(ctx context.Context, user User) (int, error) {
	// ids are assigned max+1 in-row; the household member list is tiny and
	// rarely written, so a sequence is not worth the dialect split.
	query := `INSERT INTO users (id, display_name, timezone)
			  VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM users), $1, $2)
			  RETURNING id`
	var id int
	err := r.db.QueryRowContext(ctx, query, user.DisplayName, user.Timezone).Scan(&id)
	if err != nil {
		log.Errorf("failed to create user: %v", err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) GetUser(ctx context.Context, id int) (User, error) {
	query := `SELECT id, display_name, timezone FROM users WHERE id = $1`
	var user User
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.Id, &user.DisplayName, &user.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	} else if err != nil {
		log.Errorf("failed to get user %d: %v", id, err)
		return User{}, err
	}
	return user, nil
}

func (r *RepoImpl) GetAllUsers(ctx context.Context) ([]User, error) {
	query := `SELECT id, display_name, timezone FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		log.Errorf("failed to list users: %v", err)
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.DisplayName, &u.Timezone); err != nil {
			log.Errorf("failed to scan user row: %v", err)
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
