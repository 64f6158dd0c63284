package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

const userColumns = `id, tenant_id, username, email, full_name, password_hash, status, email_verified,
	last_login_at, password_reset_token, password_reset_expires_at, created_at, updated_at`

// Store handles user account persistence
type Store struct {
	db postgres.DBTX
}

// NewStore creates a new credential store
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Normalize lower-cases and trims a username or email
func Normalize(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Create inserts a new account. A missing ID is generated.
func (s *Store) Create(ctx context.Context, u *UserAccount) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = StatusInactive
	}
	u.Username = Normalize(u.Username)
	u.Email = Normalize(u.Email)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_accounts (id, tenant_id, username, email, full_name, password_hash, status, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.TenantID, u.Username, u.Email, u.FullName, u.PasswordHash, string(u.Status), u.EmailVerified, now, now)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Username, result.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetByID retrieves a non-deleted account
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*UserAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM user_accounts WHERE id = $1 AND deleted_at IS NULL`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// FindByLogin retrieves a non-deleted account by username or email,
// case-insensitively. An email match wins over a username match.
func (s *Store) FindByLogin(ctx context.Context, login string) (*UserAccount, error) {
	login = Normalize(login)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM user_accounts
		WHERE (username = $1 OR email = $1) AND deleted_at IS NULL
		ORDER BY CASE WHEN email = $1 THEN 0 ELSE 1 END
		LIMIT 1
	`, login)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", login, result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// EmailExists reports whether any account, deleted or not, holds email.
// Deleted rows count because the unique constraint still covers them.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM user_accounts WHERE email = $1`, Normalize(email))
}

// UsernameExists reports whether any account, deleted or not, holds username
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM user_accounts WHERE username = $1`, Normalize(username))
}

func (s *Store) exists(ctx context.Context, query string, arg any) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

// CountByTenant counts the non-deleted accounts of a tenant
func (s *Store) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_accounts WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenant users: %w", err)
	}
	return count, nil
}

// TouchLastLogin records a successful login
func (s *Store) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, id, `last_login_at = $2`, at.UTC())
}

// SetStatus changes the account status
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status UserStatus) error {
	return s.update(ctx, id, `status = $2`, string(status))
}

// MarkEmailVerified flags the email as verified and activates the account
func (s *Store) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, `email_verified = TRUE, status = $2`, string(StatusActive))
}

// SetPasswordResetToken stores a reset token valid until expiresAt
func (s *Store) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return s.update(ctx, id, `password_reset_token = $2, password_reset_expires_at = $3`, token, expiresAt.UTC())
}

// ClearPasswordResetToken removes any pending reset token
func (s *Store) ClearPasswordResetToken(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, `password_reset_token = NULL, password_reset_expires_at = NULL`)
}

// FindByPasswordResetToken retrieves the account holding an unexpired reset token
func (s *Store) FindByPasswordResetToken(ctx context.Context, token string, now time.Time) (*UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM user_accounts
		WHERE password_reset_token = $1 AND password_reset_expires_at > $2 AND deleted_at IS NULL
	`, token, now.UTC())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reset token: %w", result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return u, nil
}

// UpdatePassword replaces the password hash and consumes any reset token
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return s.update(ctx, id,
		`password_hash = $2, password_reset_token = NULL, password_reset_expires_at = NULL`, passwordHash)
}

// SoftDelete marks the account deleted
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, id, `deleted_at = $2`, at.UTC())
}

// update applies set to a non-deleted account. Placeholders in set start at $2;
// updated_at is always bumped.
func (s *Store) update(ctx context.Context, id uuid.UUID, set string, args ...any) error {
	nowPos := len(args) + 2
	query := fmt.Sprintf(`UPDATE user_accounts SET %s, updated_at = $%d WHERE id = $1 AND deleted_at IS NULL`, set, nowPos)

	params := make([]any, 0, len(args)+2)
	params = append(params, id)
	params = append(params, args...)
	params = append(params, time.Now().UTC())

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, result.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserAccount, error) {
	var u UserAccount
	var tenantID uuid.NullUUID
	var lastLogin, resetExpires sql.NullTime
	var resetToken sql.NullString
	var status string

	err := row.Scan(
		&u.ID,
		&tenantID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&status,
		&u.EmailVerified,
		&lastLogin,
		&resetToken,
		&resetExpires,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Status = UserStatus(status)
	if tenantID.Valid {
		id := tenantID.UUID
		u.TenantID = &id
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if resetToken.Valid {
		tok := resetToken.String
		u.PasswordResetToken = &tok
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		u.PasswordResetExpiresAt = &t
	}
	return &u, nil
}
