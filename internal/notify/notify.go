// Package notify delivers account lifecycle emails by handing them off to the
// mailer through the message broker. Delivery failures are reported to the
// caller so it can decide whether the surrounding operation degrades or fails.
package notify

import (
	"context"
)

// Notifier sends account-related email notifications.
type Notifier interface {
	// SendOTP delivers a verification passcode to the account's email.
	SendOTP(ctx context.Context, accountID, email, name, code string) error

	// SendPasswordReset delivers a password reset link containing the raw
	// single-use token.
	SendPasswordReset(ctx context.Context, accountID, email, name, resetURL string) error
}
