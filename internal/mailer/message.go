package mailer

import (
	"fmt"
	"html"
	"time"
)

const verificationSubject = "Verify Your Email - Todo App"

// VerificationMessage renders the account verification e-mail for code.
func VerificationMessage(to, code string, ttl time.Duration) Message {
	mins := int(ttl / time.Minute)
	if mins <= 0 {
		mins = 10
	}
	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Welcome to Todo App!</h2>
  <p>Thank you for creating an account. Please verify your email address by entering the following code:</p>
  <div style="background-color: #f4f4f4; padding: 20px; text-align: center; margin: 20px 0;">
    <h1 style="color: #007bff; font-size: 32px; letter-spacing: 5px; margin: 0;">%s</h1>
  </div>
  <p>This code will expire in %d minutes.</p>
  <p>If you didn't create this account, please ignore this email.</p>
</div>
`, html.EscapeString(code), mins)

	return Message{
		To:      to,
		Subject: verificationSubject,
		HTML:    body,
		Text:    fmt.Sprintf("Your Todo App verification code is %s. It expires in %d minutes.", code, mins),
		Tag:     "verification",
	}
}
