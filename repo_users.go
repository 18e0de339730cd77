package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumePasswordResetTokenSQL redeems a reset token in a single statement.
// The WHERE clause carries both the token match and the expiration check so
// two concurrent redeems can never both succeed.
var ConsumePasswordResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"last_password_change" = ?,
	"password_reset_token" = NULL,
	"password_reset_token_expiration" = NULL,
	"login_attempts" = 0,
	"login_attempt_at" = NULL
WHERE
	"usr"."password_reset_token" = ?
AND (
	"usr"."password_reset_token_expiration" > ?
) RETURNING *;`

// ConsumeEmailVerificationTokenSQL redeems a verification token, same shape
// as the password reset statement.
var ConsumeEmailVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"email_verification_token" = NULL,
	"email_verification_token_expiration" = NULL
WHERE
	"usr"."email_verification_token" = ?
AND (
	"usr"."email_verification_token_expiration" > ?
) RETURNING *;`

var StorePasswordResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_reset_token" = ?,
	"password_reset_token_expiration" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

var StoreEmailVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"email_verification_token" = ?,
	"email_verification_token_expiration" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

// UpdateEmailSQL swaps the address and resets every piece of verification
// state tied to the previous address.
var UpdateEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?,
	"email_lowered" = ?,
	"is_email_verified" = FALSE,
	"email_verification_token" = NULL,
	"email_verification_token_expiration" = NULL
WHERE
	"usr"."id" = ?
RETURNING *;`

// UpdatePasswordSQL installs a new hash and drops any outstanding reset
// token. A reset minted before the change must not work after it.
var UpdatePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"last_password_change" = ?,
	"password_reset_token" = NULL,
	"password_reset_token_expiration" = NULL
WHERE
	"usr"."id" = ?
RETURNING *;`

var SetLockoutSQL = `UPDATE "users" AS "usr"
SET
	"is_locked_out" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	GetOrCreate(ctx context.Context, record *User) (*User, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) (*User, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, at time.Time) (*User, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error)
	UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error)
	SetLockout(ctx context.Context, id uuid.UUID, locked bool) (*User, error)
	SetLockoutTx(ctx context.Context, tx bun.IDB, id uuid.UUID, locked bool) (*User, error)

	StorePasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error)
	StoreEmailVerificationToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error)
	FindByPasswordResetToken(ctx context.Context, token string) (*User, error)
	FindByEmailVerificationToken(ctx context.Context, token string) (*User, error)
	ConsumePasswordResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
	ConsumePasswordResetTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*User, error)
	ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*User, error)
	ConsumeEmailVerificationTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

// GetByIdentifier resolves a user by id, email, or username. Email and
// username lookups go through the lowered columns so "Alice" and "alice"
// name the same account.
func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, mapUserUniqueViolation(err)
	}
	return created, nil
}

func (a *users) GetOrCreate(ctx context.Context, record *User) (*User, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *users) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	user, err := a.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return user, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *users) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) (*User, error) {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash, at)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, at time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UpdatePasswordSQL, passwordHash, at, id.String())
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"id": id.String()})
}

func (a *users) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error) {
	return a.UpdateEmailTx(ctx, a.db, id, email)
}

func (a *users) UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error) {
	lowered := strings.ToLower(strings.TrimSpace(email))
	res, err := a.Repository.RawTx(ctx, tx, UpdateEmailSQL, email, lowered, id.String())
	if err != nil {
		return nil, mapUserUniqueViolation(err)
	}
	return firstOrNotFound(res, map[string]any{"id": id.String()})
}

func (a *users) SetLockout(ctx context.Context, id uuid.UUID, locked bool) (*User, error) {
	return a.SetLockoutTx(ctx, a.db, id, locked)
}

func (a *users) SetLockoutTx(ctx context.Context, tx bun.IDB, id uuid.UUID, locked bool) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, SetLockoutSQL, locked, id.String())
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"id": id.String()})
}

func (a *users) StorePasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, StorePasswordResetTokenSQL, token, expiration, id.String())
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"id": id.String()})
}

func (a *users) StoreEmailVerificationToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, StoreEmailVerificationTokenSQL, token, expiration, id.String())
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"id": id.String()})
}

func (a *users) FindByPasswordResetToken(ctx context.Context, token string) (*User, error) {
	return a.findByTokenColumn(ctx, "password_reset_token", token)
}

func (a *users) FindByEmailVerificationToken(ctx context.Context, token string) (*User, error) {
	return a.findByTokenColumn(ctx, "email_verification_token", token)
}

func (a *users) findByTokenColumn(ctx context.Context, column, token string) (*User, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := a.db.NewSelect().Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (a *users) ConsumePasswordResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error) {
	return a.ConsumePasswordResetTokenTx(ctx, a.db, token, passwordHash, now)
}

func (a *users) ConsumePasswordResetTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumePasswordResetTokenSQL, passwordHash, now, token, now)
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"token": "password_reset"})
}

func (a *users) ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*User, error) {
	return a.ConsumeEmailVerificationTokenTx(ctx, a.db, token, now)
}

func (a *users) ConsumeEmailVerificationTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeEmailVerificationTokenSQL, token, now)
	if err != nil {
		return nil, err
	}
	return firstOrNotFound(res, map[string]any{"token": "email_verification"})
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"last_login" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?);
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureRole()
	record.NormalizeIdentifiers()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// mapUserUniqueViolation translates driver level unique constraint failures
// into field scoped conflicts. Uniqueness is enforced by the constraint, not
// by a racy pre-check.
func mapUserUniqueViolation(err error) error {
	if err == nil || !IsUniqueViolation(err) {
		return err
	}

	msg := err.Error()
	if strings.Contains(msg, "email_lowered") {
		return ErrEmailTaken
	}
	if strings.Contains(msg, "username_lowered") {
		return ErrUsernameTaken
	}

	return err
}

func firstOrNotFound(res []*User, meta map[string]any) (*User, error) {
	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().WithMetadata(meta)
	}
	return res[0], nil
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	lowered := strings.ToLower(trimmed)

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email_lowered",
			value:  lowered,
		})
	}

	options = append(options, identifierOption{
		column: "username_lowered",
		value:  lowered,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
