package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
)

const userColumns = `id, full_name, email, password_hash, role, verified,
	verification_token, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }, u *models.User) error {
	return row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Verified,
		&u.VerificationToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

func CreateUser(ctx context.Context, db *sql.DB, fullName, email, passwordHash, role, verificationToken string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (full_name, email, password_hash, role, verified, verification_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, NOW(), NOW())
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, fullName, email, passwordHash, role, verificationToken), user)
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// CreateGuestUser inserts the implicit user row for an anonymous
// shopper: no email, no password, role guest.
func CreateGuestUser(ctx context.Context, db *sql.DB) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (full_name, email, password_hash, role, verified, created_at, updated_at)
		VALUES ('', NULL, '', 'guest', FALSE, NOW(), NOW())
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query), user)
	if err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := scanUser(db.QueryRowContext(ctx, query, id), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	err := scanUser(db.QueryRowContext(ctx, query, email), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

func MarkUserVerified(ctx context.Context, db *sql.DB, token string) (*models.User, error) {
	user := &models.User{}

	query := `
		UPDATE users
		SET verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE verification_token = $1
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, token), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("mark user verified: %w", err)
	}

	return user, nil
}

// ListExpiredGuests returns ids of guest users created before the
// cutoff, oldest first. The reaper deletes them one transaction each.
func ListExpiredGuests(ctx context.Context, db *sql.DB, cutoff time.Time) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id FROM users
		 WHERE role = 'guest' AND created_at < $1
		 ORDER BY created_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired guests: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan guest id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// DeleteUser removes the user row; the cart and its lines cascade.
func DeleteUser(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}

func ListUsers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      users,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
