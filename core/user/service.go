package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	Repository interface {
		// CreateUser assigns the user ID. It returns ErrEmailExists if the email is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.Ordering) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// UpdateUser applies fn on the stored user and saves it, retrying fn on concurrent writes.
		// It returns ErrEmailExists if the new email is taken.
		UpdateUser(ctx context.Context, id string, fn func(usr *User) error) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	// TokenDenylist remembers signed-out access tokens until they expire.
	TokenDenylist interface {
		Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	Service interface {
		CreateAccount(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error
		IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
		Query(ctx context.Context, filter QueryFilter, ordering ...core.Ordering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		UpdateFees(ctx context.Context, usr User, uf UpdateFees) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		conf     *core.Config
		repo     Repository
		denylist TokenDenylist
		mailSvc  core.EmailService
		logger   core.Logger
		tokens   *tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	denylist TokenDenylist,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return newService(conf, repo, denylist, mailSvc, logger)
}

func newService(conf *core.Config, repo Repository, denylist TokenDenylist, mailSvc core.EmailService, logger core.Logger) *service {
	return &service{
		conf:     conf,
		repo:     repo,
		denylist: denylist,
		mailSvc:  mailSvc,
		logger:   logger,
		tokens:   newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func emailExistsError(err error) error {
	if errors.Cause(err) == ErrEmailExists {
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	return err
}

// CreateAccount creates an active user. nu must have been validated.
func (svc *service) CreateAccount(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc()
	role := nu.Role
	if role == "" {
		role = RoleStudent
	}
	usr := User{
		Name:      nu.Name,
		Email:     core.CleanString(nu.Email, true /* lower */),
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, emailExistsError(err)
	}
	return usr, nil
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	now := core.NowFunc()
	usr, err = svc.repo.UpdateUser(ctx, usr.ID, func(u *User) error {
		u.LastLogin = null.TimeFrom(now)
		return nil
	})
	return usr, errors.Wrap(err, "setting last login")
}

// SignOut revokes the access token tokenID until it expires.
func (svc *service) SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if svc.denylist == nil || tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(core.NowFunc())
	if ttl <= 0 {
		return nil // already expired
	}
	return errors.Wrap(svc.denylist.Revoke(ctx, tokenID, ttl), "revoking token")
}

func (svc *service) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	if svc.denylist == nil || tokenID == "" {
		return false, nil
	}
	return svc.denylist.IsRevoked(ctx, tokenID)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering ...core.Ordering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering...)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByEmail(ctx, email)
}

// Update applies uu on usr. uu must have been validated against usr.
// Only the fields set in uu are written; concurrent changes to the others are kept.
func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	var hash []byte
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		hash = usr.PasswordHash
	}
	now := core.NowFunc()

	usr, err := svc.repo.UpdateUser(ctx, usr.ID, func(u *User) error {
		if uu.Name != "" {
			u.Name = uu.Name
		}
		if uu.Email != "" {
			u.Email = uu.Email
		}
		if uu.Role != "" {
			u.Role = uu.Role
		}
		if uu.IsActive != nil {
			u.IsActive = *uu.IsActive
		}
		if hash != nil {
			u.PasswordHash = hash
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return User{}, emailExistsError(err)
	}
	return usr, nil
}

func (svc *service) UpdateFees(ctx context.Context, usr User, uf UpdateFees) (User, error) {
	fees := Fees{Amount: *uf.Amount, Currency: uf.Currency}
	now := core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr.ID, func(u *User) error {
		u.Fees = fees
		u.UpdatedAt = now
		return nil
	})
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if tag := checkPassword(pwd, usr.Name, usr.Email); tag != "" {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "password", Error: passwordRuleTexts[tag]})
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.savePassword(ctx, usr.ID, usr.PasswordHash)
}

func (svc *service) savePassword(ctx context.Context, id string, hash []byte) (User, error) {
	now := core.NowFunc()
	return svc.repo.UpdateUser(ctx, id, func(u *User) error {
		u.PasswordHash = hash
		u.UpdatedAt = now
		return nil
	})
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		svc.logger.Error("making password reset token", err, usr)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidToken := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidToken
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidToken
		}
		return errors.Wrap(err, "finding user by ID")
	}

	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		if err == errInvalidToken || err == errTokenExpired {
			return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
		}
		return errors.Wrap(err, "verifying token")
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	_, err = svc.savePassword(ctx, usr.ID, usr.PasswordHash)
	return errors.Wrap(err, "saving new password")
}
