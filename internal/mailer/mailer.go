// Package mailer sends the transactional mail the auth flows depend on:
// sign-up confirmation and password reset. Failures propagate to the caller
// -- a swallowed confirmation mail would leave a user permanently inactive.
package mailer

import "context"

// Mailer is the outbound mail contract consumed by the auth service.
type Mailer interface {
	// SendConfirmation mails the email-confirmation link for a new account.
	SendConfirmation(ctx context.Context, to, hash string) error

	// SendPasswordReset mails the single-use password reset link.
	SendPasswordReset(ctx context.Context, to, hash string) error
}
