package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/setlist/internal/domain"
)

// undefinedTableCode is the Postgres error code for a missing relation.
// Preview environments may run against a database without the users table;
// that condition is treated as "user not found" rather than a failure.
const undefinedTableCode = "42P01"

// UserRepository handles user data access operations.
type UserRepository struct {
	db       *sqlx.DB
	validate *validator.Validate
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, validate: validator.New()}
}

type userRow struct {
	UserID          string    `db:"user_id" validate:"required"`
	Email           string    `db:"email" validate:"required,email"`
	DisplayName     *string   `db:"display_name"`
	AvatarURL       *string   `db:"avatar_url"`
	LinkedProviders *string   `db:"linked_providers"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// FindByEmail retrieves a user by exact email match. A missing row, and a
// missing users relation, both yield (nil, nil); any other store failure is
// a DatabaseError.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, email, display_name, avatar_url, linked_providers, created_at, updated_at
		 FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if IsMissingRelation(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Message: "find user by email", Err: err}
	}

	if err := r.validate.Struct(row); err != nil {
		return nil, &domain.DatabaseError{Message: "invalid user row", Err: err}
	}

	return &domain.User{
		UserID:          row.UserID,
		Email:           row.Email,
		DisplayName:     row.DisplayName,
		AvatarURL:       row.AvatarURL,
		LinkedProviders: NormalizeLinkedProviders(row.LinkedProviders),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// FindUsernameByUserID looks up the public display name for a user. No row
// and a NULL username are both the non-error "no username" outcome; unlike
// FindByEmail, a malformed row has no fallback and fails as DatabaseError.
func (r *UserRepository) FindUsernameByUserID(ctx context.Context, userID string) (*string, error) {
	var row domain.UserPublic
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, username FROM users_public WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Message: "find username", Err: err}
	}

	if err := r.validate.Struct(row); err != nil {
		return nil, &domain.DatabaseError{Message: "invalid public profile row", Err: err}
	}

	return row.Username, nil
}

// IsMissingRelation reports whether err carries the Postgres undefined_table
// code.
func IsMissingRelation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

// NormalizeLinkedProviders converts the stored provider-link encoding into a
// list of strings. The column has carried a JSON array, a JSON scalar, and a
// comma-joined string at different points; any value that resists decoding
// degrades to an empty list instead of failing resolution.
func NormalizeLinkedProviders(raw *string) []string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return []string{}
	}
	s := strings.TrimSpace(*raw)

	if strings.HasPrefix(s, "[") {
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return []string{}
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				out = append(out, v)
			case float64:
				out = append(out, fmt.Sprintf("%v", v))
			default:
				return []string{}
			}
		}
		return out
	}

	if strings.HasPrefix(s, `"`) {
		var single string
		if err := json.Unmarshal([]byte(s), &single); err != nil {
			return []string{}
		}
		s = single
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
