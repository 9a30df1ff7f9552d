package accounts

import (
	stderrors "errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type Middleware interface {
	Impersonate(c router.Context, identifier string) error
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	user, ok := cookie.(*jwt.Token)
	if user == nil || !ok {
		// The JWT middleware stores decoded claims rather than the raw token.
		if claims, ok := cookie.(jwt.Claims); ok {
			return sessionFromClaims(claims)
		}
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := user.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

// APIResponse is the uniform envelope every route renders.
type APIResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Data    any       `json:"data,omitempty"`
}

type APIError struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
}

// NewErrorResponse converts any error into the envelope. Rich errors keep
// their message and text code; everything else is collapsed into a generic
// server error so internals never leak to a client.
func NewErrorResponse(err error) APIResponse {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return APIResponse{
			Success: false,
			Error:   &APIError{Message: "An unexpected server error occurred"},
		}
	}

	return APIResponse{
		Success: false,
		Error: &APIError{
			Message:  richErr.Message,
			TextCode: richErr.TextCode,
		},
	}
}

// HTTPStatusFromError maps domain error categories onto HTTP status codes.
// This is the only place the mapping lives; commands and repositories never
// think in HTTP terms.
func HTTPStatusFromError(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return router.StatusInternalServerError
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return router.StatusUnauthorized
	case errors.CategoryAuthz:
		return router.StatusForbidden
	case errors.CategoryNotFound:
		return router.StatusNotFound
	case errors.CategoryConflict:
		return router.StatusConflict
	case errors.CategoryValidation, errors.CategoryBadInput:
		return router.StatusBadRequest
	case errors.CategoryRateLimit:
		return router.StatusTooManyRequests
	default:
		if richErr.Code > 0 {
			return richErr.Code
		}
		return router.StatusInternalServerError
	}
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) {
	controller := NewAccountsController(opts...)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("accounts.register")
	app.Post(controller.Routes.Login, controller.Login).
		SetName("accounts.login")
	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("accounts.logout")

	app.Post(controller.Routes.VerificationRequest, controller.RequestVerification).
		SetName("accounts.verification-request")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.VerifyEmail), controller.VerifyEmail).
		SetName("accounts.verify-email")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetRequest).
		SetName("accounts.pwd-reset.request")
	app.Get(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetValidate).
		SetName("accounts.pwd-reset.validate")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetConfirm).
		SetName("accounts.pwd-reset.confirm")

	app.Post(controller.Routes.ChangePassword, controller.ChangePassword).
		SetName("accounts.change-password")

	app.Post(fmt.Sprintf("%s/:id/suspend", controller.Routes.Accounts), controller.Suspend).
		SetName("accounts.suspend")
	app.Post(fmt.Sprintf("%s/:id/activate", controller.Routes.Accounts), controller.Activate).
		SetName("accounts.activate")
	app.Get(fmt.Sprintf("%s/:id/suspension", controller.Routes.Accounts), controller.GetSuspension).
		SetName("accounts.suspension")
	app.Delete(fmt.Sprintf("%s/:id", controller.Routes.Accounts), controller.Delete).
		SetName("accounts.delete")
}

type AccountsControllerRoutes struct {
	Register            string
	Login               string
	Logout              string
	VerificationRequest string
	VerifyEmail         string
	PasswordReset       string
	ChangePassword      string
	Accounts            string
}

type AccountsController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AccountsControllerRoutes
	Auther       HTTPAuthenticator
	Tokens       TokenService
	Notifier     Notifier
	Sink         ActivitySink
	ErrorHandler router.ErrorHandler
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:       defLogger{},
		Notifier:     noopNotifier{},
		Sink:         noopActivitySink{},
		ErrorHandler: defaultControllerErrHandler,
		Routes: &AccountsControllerRoutes{
			Register:            "/register",
			Login:               "/login",
			Logout:              "/logout",
			VerificationRequest: "/verification-request",
			VerifyEmail:         "/verify-email",
			PasswordReset:       "/password-reset",
			ChangePassword:      "/change-password",
			Accounts:            "/accounts",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in accounts controller...")
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Repo = repo
		return c
	}
}

func WithControllerTokens(tokens TokenService) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Tokens = tokens
		return c
	}
}

func WithControllerAuther(auther HTTPAuthenticator) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Auther = auther
		return c
	}
}

func WithControllerNotifier(n Notifier) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Notifier = normalizeNotifier(n)
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Sink = normalizeActivitySink(sink)
		return c
	}
}

func WithControllerLogger(l Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// RegistrationPayload is the registration body
type RegistrationPayload struct {
	Email           string `form:"email" json:"email"`
	Name            string `form:"name" json:"name"`
	Phone           string `form:"phone" json:"phone"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountsController) Register(ctx router.Context) error {
	payload := new(RegistrationPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload", "error", err)
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	var res *RegisterUserResponse
	req := RegisterUserMessage{
		Email:    payload.Email,
		Name:     payload.Name,
		Phone:    payload.Phone,
		Password: payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	handler := NewRegisterUserHandler(a.Repo, a.Tokens).
		WithNotifier(a.Notifier).
		WithActivitySink(a.Sink).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, APIResponse{
		Success: true,
		Data: map[string]any{
			"account": res.User,
			"token":   res.Token,
		},
	})
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

// GetExtendedSession reports whether the session should outlive the default duration
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountsController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	if a.Auther == nil {
		return a.renderError(ctx, errors.New("login is not configured", errors.CategoryInternal))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{Success: true})
}

func (a *AccountsController) Logout(ctx router.Context) error {
	if a.Auther != nil {
		a.Auther.Logout(ctx)
	}
	return ctx.JSON(router.StatusOK, APIResponse{Success: true})
}

func (a *AccountsController) RequestVerification(ctx router.Context) error {
	session, err := GetRouterSession(ctx, "user")
	if err != nil {
		return a.renderError(ctx, ErrInvalidSessionToken)
	}

	userID, err := session.GetUserUUID()
	if err != nil {
		return a.renderError(ctx, ErrInvalidSessionToken)
	}

	var res *RequestEmailVerificationResponse
	req := RequestEmailVerificationMessage{
		UserID: userID,
		OnResponse: func(resp *RequestEmailVerificationResponse) {
			res = resp
		},
	}

	handler := NewRequestEmailVerificationHandler(a.Repo, a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"already_verified": res.AlreadyVerified,
		},
	})
}

func (a *AccountsController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	var res *VerifyEmailResponse
	req := VerifyEmailMessage{
		Token: token,
		OnResponse: func(resp *VerifyEmailResponse) {
			res = resp
		},
	}

	handler := NewVerifyEmailHandler(a.Repo).
		WithActivitySink(a.Sink).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]any{"account": res.User},
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AccountsController) PasswordResetRequest(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload", "error", err)
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	var res *InitializePasswordResetResponse
	req := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Message: res.Message,
	})
}

func (a *AccountsController) PasswordResetValidate(ctx router.Context) error {
	token := ctx.Param("token", "")

	var res *ValidateResetTokenResponse
	req := ValidateResetTokenMessage{
		Token: token,
		OnResponse: func(resp *ValidateResetTokenResponse) {
			res = resp
		},
	}

	handler := NewValidateResetTokenHandler(a.Repo).WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]any{"email": res.Email},
	})
}

// PasswordResetConfirmPayload holds values for the final reset step
type PasswordResetConfirmPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountsController) PasswordResetConfirm(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(PasswordResetConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset confirm parse payload", "error", err)
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	req := FinalizePasswordResetMessage{
		Token:       token,
		NewPassword: payload.Password,
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithActivitySink(a.Sink).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{Success: true})
}

// ChangePasswordPayload is the change password body
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
	)
}

func (a *AccountsController) ChangePassword(ctx router.Context) error {
	session, err := GetRouterSession(ctx, "user")
	if err != nil {
		return a.renderError(ctx, ErrInvalidSessionToken)
	}

	userID, err := session.GetUserUUID()
	if err != nil {
		return a.renderError(ctx, ErrInvalidSessionToken)
	}

	payload := new(ChangePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("change password parse payload", "error", err)
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	req := ChangePasswordMessage{
		UserID:          userID,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	}

	handler := NewChangePasswordHandler(a.Repo).
		WithActivitySink(a.Sink).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{Success: true})
}

// SuspendPayload is the suspension body
type SuspendPayload struct {
	Reason string `form:"reason" json:"reason"`
}

// Validate will validate the payload
func (r SuspendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Required, validation.Length(3, 500)),
	)
}

func (a *AccountsController) Suspend(ctx router.Context) error {
	adminID, err := a.requireAdmin(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.badRequest(ctx, "Invalid account id")
	}

	payload := new(SuspendPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	var res *SuspendUserResponse
	req := SuspendUserMessage{
		UserID:  targetID,
		Reason:  payload.Reason,
		AdminID: adminID,
		OnResponse: func(resp *SuspendUserResponse) {
			res = resp
		},
	}

	handler := NewSuspendUserHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]any{"account": res.User},
	})
}

// GetSuspension returns the suspension metadata for an account. Unlike the
// credential paths, non-existence is safe to reveal to an admin here.
func (a *AccountsController) GetSuspension(ctx router.Context) error {
	if _, err := a.requireAdmin(ctx); err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.badRequest(ctx, "Invalid account id")
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), targetID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return a.renderError(ctx, ErrAccountNotFound)
		}
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]any{"suspension": user.SuspensionInfo()},
	})
}

func (a *AccountsController) Activate(ctx router.Context) error {
	adminID, err := a.requireAdmin(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.badRequest(ctx, "Invalid account id")
	}

	var res *ActivateUserResponse
	req := ActivateUserMessage{
		UserID:  targetID,
		AdminID: adminID,
		OnResponse: func(resp *ActivateUserResponse) {
			res = resp
		},
	}

	handler := NewActivateUserHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]any{"account": res.User},
	})
}

func (a *AccountsController) Delete(ctx router.Context) error {
	adminID, err := a.requireAdmin(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.badRequest(ctx, "Invalid account id")
	}

	req := DeleteUserMessage{
		UserID:  targetID,
		ActorID: adminID,
	}

	handler := NewDeleteUserHandler(a.Repo).
		WithActivitySink(a.Sink).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, APIResponse{Success: true})
}

// requireAdmin resolves the session and enforces the admin role for the
// admin-only lifecycle routes.
func (a *AccountsController) requireAdmin(ctx router.Context) (uuid.UUID, error) {
	session, err := GetRouterSession(ctx, "user")
	if err != nil {
		return uuid.Nil, ErrInvalidSessionToken
	}

	if !session.IsAtLeast(RoleAdmin) {
		return uuid.Nil, ErrInsufficientPermissions
	}

	adminID, err := session.GetUserUUID()
	if err != nil {
		return uuid.Nil, ErrInvalidSessionToken
	}

	return adminID, nil
}

func (a *AccountsController) renderError(ctx router.Context, err error) error {
	return ctx.JSON(HTTPStatusFromError(err), NewErrorResponse(err))
}

func (a *AccountsController) badRequest(ctx router.Context, msg string) error {
	return ctx.JSON(router.StatusBadRequest, APIResponse{
		Success: false,
		Error:   &APIError{Message: msg},
	})
}

func (a *AccountsController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, APIResponse{
		Success: false,
		Error:   &APIError{Message: "Validation failed"},
		Data:    map[string]any{"validation": FormatValidationErrorToMap(err)},
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return stderrors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultControllerErrHandler(c router.Context, err error) error {
	return c.JSON(HTTPStatusFromError(err), NewErrorResponse(err))
}
