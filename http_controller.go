package identity

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the authentication endpoints on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")
	app.Post(controller.Routes.Logout, controller.LogOut).
		SetName("auth.logout")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetRequest).
		SetName("auth.pwd-reset.request")
	app.Get(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetStatus).
		SetName("auth.pwd-reset.status")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("auth.pwd-reset.execute")

	app.Post(controller.Routes.EmailVerification, controller.EmailVerificationRequest).
		SetName("auth.email-verify.request")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.EmailVerification), controller.EmailVerificationExecute).
		SetName("auth.email-verify.execute")
}

type AuthControllerRoutes struct {
	Login             string
	Logout            string
	Register          string
	PasswordReset     string
	EmailVerification string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	Lifecycle    *TokenLifecycle
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerLifecycle(lifecycle *TokenLifecycle) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Lifecycle = lifecycle
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:             "/login",
			Logout:            "/logout",
			Register:          "/register",
			PasswordReset:     "/password-reset",
			EmailVerification: "/email-verification",
		},
	}

	c.ErrorHandler = func(ctx router.Context, err error) error {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": err.Error(),
		})
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Lifecycle == nil {
		c.Lifecycle = NewTokenLifecycle(c.Repo.Users())
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the remember me flag
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		a.Logger.Error("login error: %v", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]any{
			"error": "authentication failed",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo).WithLogger(a.Logger)
	user, err := registerUser.Execute(ctx.Context(), req)
	if err != nil {
		a.Logger.Error("register user error: %v", err)
		if IsConflictError(err) {
			return ctx.JSON(http.StatusConflict, map[string]any{
				"error": err.Error(),
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, user)
}

// PasswordResetRequestPayload holds values for a password reset request
type PasswordResetRequestPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
	)
}

// PasswordResetRequest always answers success for well-formed payloads, no
// matter whether the identifier named an account.
func (a *AuthController) PasswordResetRequest(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if _, err := a.Lifecycle.RequestPasswordReset(ctx.Context(), payload.Identifier); err != nil {
		a.Logger.Error("password reset request error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) PasswordResetStatus(ctx router.Context) error {
	token := ctx.Param("token")

	status, err := a.Lifecycle.PasswordResetTokenStatus(ctx.Context(), token)
	if err != nil {
		a.Logger.Error("password reset status error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": status,
	})
}

// PasswordResetExecutePayload carries the new password
type PasswordResetExecutePayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetExecutePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	token := ctx.Param("token")
	payload := new(PasswordResetExecutePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Lifecycle.ResetPassword(ctx.Context(), token, payload.Password); err != nil {
		a.Logger.Error("password reset execute error: %v", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": err.Error(),
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// EmailVerificationRequestPayload identifies the account to verify
type EmailVerificationRequestPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
}

// Validate will validate the payload
func (r EmailVerificationRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
	)
}

func (a *AuthController) EmailVerificationRequest(ctx router.Context) error {
	payload := new(EmailVerificationRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("email verification parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if _, err := a.Lifecycle.RequestEmailVerification(ctx.Context(), payload.Identifier); err != nil {
		a.Logger.Error("email verification request error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) EmailVerificationExecute(ctx router.Context) error {
	token := ctx.Param("token")

	if err := a.Lifecycle.VerifyEmail(ctx.Context(), token); err != nil {
		a.Logger.Error("email verification execute error: %v", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": err.Error(),
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// ValidateStringEquals builds an ozzo rule that checks two fields match.
func ValidateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("values do not match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
