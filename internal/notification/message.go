// Copyright 2026 The Shahin GRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notification

import (
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Message is a composed email with both plain-text and rich-text bodies.
type Message struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Bytes renders the message as a multipart/alternative MIME document.
func (m *Message) Bytes() ([]byte, error) {
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", m.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	buf.WriteString("\r\n")

	// Plain part first so the least capable client wins.
	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", m.Text},
		{"text/html; charset=UTF-8", m.HTML},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type": {part.contentType},
		})
		if err != nil {
			return nil, fmt.Errorf("notification: failed to create MIME part: %w", err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("notification: failed to write MIME part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("notification: failed to finalize MIME message: %w", err)
	}

	return []byte(buf.String()), nil
}

// ComposeWelcome builds the welcome email carrying the admin credentials and
// login instructions for a freshly provisioned tenant.
func ComposeWelcome(n Notification, from, supportEmail string) *Message {
	subject := "Welcome to Shahin GRC Platform - Your Admin Credentials"

	// An empty password means the run converged on an existing admin and no
	// new credential was minted.
	password := n.Password
	if password == "" {
		password = "(unchanged - use your existing password)"
	}

	text := fmt.Sprintf(`Dear Admin,

Your tenant "%s" has been created on Shahin GRC Platform.

LOGIN CREDENTIALS:
- Email: %s
- Temporary Password: %s
- Login URL: %s

IMPORTANT: You must change your password on first login.

GETTING STARTED:
1. Log in with your credentials above
2. Complete the onboarding wizard
3. Set up your organization profile
4. Invite team members

Need help? Contact %s

Best regards,
Shahin GRC Team
`, n.TenantName, n.Recipient, password, n.LoginURL, supportEmail)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #667eea; color: white; padding: 30px; text-align: center;">
      <h1>Welcome to Shahin GRC</h1>
    </div>
    <div style="background: #f9f9f9; padding: 30px;">
      <p>Dear Admin,</p>
      <p>Your tenant <strong>%q</strong> has been successfully created on Shahin GRC Platform.</p>
      <div style="background: #fff; border: 2px solid #667eea; border-radius: 8px; padding: 20px; margin: 20px 0;">
        <h3 style="color: #667eea;">Your Login Credentials</h3>
        <p>Email: <code>%s</code></p>
        <p>Temporary Password: <code>%s</code></p>
        <p>Login URL: <a href="%s">%s</a></p>
      </div>
      <div style="background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0;">
        <strong>IMPORTANT:</strong> You must change your password on first login.
      </div>
      <ol>
        <li>Log in with your credentials above</li>
        <li>Complete the onboarding wizard</li>
        <li>Set up your organization profile</li>
        <li>Invite team members</li>
      </ol>
      <p>Need help? Contact <a href="mailto:%s">%s</a></p>
      <p>Best regards,<br><strong>Shahin GRC Team</strong></p>
    </div>
  </div>
</body>
</html>
`, n.TenantName, n.Recipient, password, n.LoginURL, n.LoginURL, supportEmail, supportEmail)

	return &Message{
		To:      n.Recipient,
		From:    from,
		Subject: subject,
		Text:    text,
		HTML:    html,
	}
}
