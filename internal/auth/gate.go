package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/mail"
	"github.com/sipico/admin-auth/internal/metrics"
	"github.com/sipico/admin-auth/internal/secret"
	"github.com/sipico/admin-auth/internal/storage"
)

// Messages returned by CheckCredentials.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgUserNotActive      = "User not active"
)

// ResetPasswordPath is appended to admin.absoluteUrl in reset emails.
const ResetPasswordPath = "/auth/reset-password"

// DefaultResetTemplate is used for fields the settings leave empty.
var DefaultResetTemplate = mail.Template{
	Subject: "Reset password",
	Text: "We heard that you lost your password. Sorry about that!\n\n" +
		"But don't worry! You can use the following link to reset your password:\n" +
		"<%= url %>\n\nThanks.",
	HTML: "<p>We heard that you lost your password. Sorry about that!</p>" +
		"<p>But don't worry! You can use the following link to reset your password:</p>" +
		"<p><%= url %></p><p>Thanks.</p>",
}

// Settings is the read side of the configuration store.
type Settings interface {
	GetString(path, def string) string
}

// Gate verifies admin credentials and runs the password reset and
// registration flows.
type Gate struct {
	store    storage.Store
	settings Settings
	mailer   mail.Sender
	bus      events.Bus
	logger   *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithEventBus sets the bus receiving user.update events.
func WithEventBus(b events.Bus) GateOption {
	return func(g *Gate) { g.bus = b }
}

// NewGate creates a Gate. A nil mailer logs reset emails instead of sending them.
func NewGate(store storage.Store, settings Settings, mailer mail.Sender, opts ...GateOption) *Gate {
	g := &Gate{
		store:    store,
		settings: settings,
		mailer:   mailer,
		bus:      events.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.mailer == nil {
		g.mailer = mail.LogSender{Logger: g.logger}
	}
	return g
}

// CheckCredentials verifies an email and password pair. A failed check
// returns a nil user and a message for the caller; err is reserved for
// store failures.
//
// Existence and password are verified before the active flag so that an
// unauthenticated caller cannot learn whether an account is disabled.
func (g *Gate) CheckCredentials(ctx context.Context, email, password string) (*storage.User, string, error) {
	u, err := g.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, "", err
	}

	if u == nil || u.Password == "" {
		burnCompare(password)
		return g.reject("invalid_credentials", MsgInvalidCredentials)
	}
	if !ValidatePassword(password, u.Password) {
		return g.reject("invalid_credentials", MsgInvalidCredentials)
	}
	if !u.IsActive {
		return g.reject("inactive", MsgUserNotActive)
	}

	metrics.RecordLoginAttempt("success")
	return u, "", nil
}

func (g *Gate) reject(outcome, msg string) (*storage.User, string, error) {
	metrics.RecordLoginAttempt(outcome)
	g.logger.Warn("login rejected", "outcome", outcome)
	return nil, msg, nil
}

// ForgotPassword issues a reset token to the active user owning email and
// mails the reset link. Unknown or inactive emails are ignored. Mail
// delivery failures are logged and not returned.
func (g *Gate) ForgotPassword(ctx context.Context, email string) error {
	u, err := g.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}

	resetToken, err := secret.GenerateShortSecret()
	if err != nil {
		return err
	}
	u.ResetPasswordToken = &resetToken
	if err := g.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	url := strings.TrimSuffix(g.settings.GetString(config.AbsoluteURLPath, ""), "/") +
		ResetPasswordPath + "?code=" + resetToken
	env := mail.Envelope{
		To:      u.Email,
		From:    g.settings.GetString(config.ForgotPasswordFromPath, ""),
		ReplyTo: g.settings.GetString(config.ForgotPasswordReplyPath, ""),
	}
	data := map[string]any{
		"url": url,
		"user": map[string]any{
			"firstname": u.Firstname,
			"lastname":  u.Lastname,
			"username":  u.Username,
			"email":     u.Email,
		},
	}
	if err := g.mailer.SendTemplatedEmail(ctx, env, g.resetTemplate(), data); err != nil {
		g.logger.Error("failed to send reset password email", "user_id", u.ID, "error", err)
	}
	return nil
}

func (g *Gate) resetTemplate() mail.Template {
	prefix := config.ForgotPasswordTemplate + "."
	return mail.Template{
		Subject: g.settings.GetString(prefix+"subject", DefaultResetTemplate.Subject),
		Text:    g.settings.GetString(prefix+"text", DefaultResetTemplate.Text),
		HTML:    g.settings.GetString(prefix+"html", DefaultResetTemplate.HTML),
	}
}

// ResetPassword sets a new password for the active user holding resetToken
// and clears the token in the same write.
func (g *Gate) ResetPassword(ctx context.Context, resetToken, password string) (*storage.User, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return nil, err
	}

	if resetToken == "" {
		return nil, apperr.Application()
	}
	u, err := g.store.GetUserByResetToken(ctx, resetToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Application()
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.Application()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.Password = hash
	u.ResetPasswordToken = nil
	if err := g.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	g.bus.Emit(ctx, events.UserUpdate, map[string]any{"id": u.ID})
	return u, nil
}

// RegistrationInfo is supplied by an invited user completing registration.
type RegistrationInfo struct {
	Firstname string
	Lastname  string
	Password  string
}

// RegistrationUser returns the pending user invited with registrationToken,
// or nil when the token is unknown.
func (g *Gate) RegistrationUser(ctx context.Context, registrationToken string) (*storage.User, error) {
	if registrationToken == "" {
		return nil, nil
	}
	u, err := g.store.GetUserByRegistrationToken(ctx, registrationToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// Register completes an invitation: it sets the password and names,
// activates the user and clears the registration token.
func (g *Gate) Register(ctx context.Context, registrationToken string, info RegistrationInfo) (*storage.User, error) {
	u, err := g.RegistrationUser(ctx, registrationToken)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Validation("Invalid registration info")
	}
	if err := ValidatePasswordPolicy(info.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(info.Firstname) == "" {
		return nil, apperr.Validation("firstname is a required field")
	}

	hash, err := HashPassword(info.Password)
	if err != nil {
		return nil, err
	}
	u.Password = hash
	u.Firstname = strings.TrimSpace(info.Firstname)
	u.Lastname = strings.TrimSpace(info.Lastname)
	u.IsActive = true
	u.RegistrationToken = nil
	if err := g.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	g.bus.Emit(ctx, events.UserUpdate, map[string]any{"id": u.ID})
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
