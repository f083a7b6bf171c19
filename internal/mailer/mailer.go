// Package mailer posts invitation emails to an external delivery API.
// Delivery is best-effort: failures are logged and never surface to the
// operation that triggered them.
package mailer

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// InvitationEmail contains everything the delivery template needs.
type InvitationEmail struct {
	To             string `json:"to"`
	OrgName        string `json:"org_name"`
	Role           string `json:"role"`
	InvitedByEmail string `json:"invited_by_email"`
	AcceptURL      string `json:"accept_url"`
}

// Client sends emails through the configured delivery endpoint.
type Client struct {
	http *resty.Client
	url  string
}

// NewClient creates a mailer client. An empty url disables delivery; Send
// then only logs, which keeps dev environments working without a mail
// provider.
func NewClient(url, token string, timeoutMS int) *Client {
	http := resty.New().
		SetTimeout(time.Duration(timeoutMS) * time.Millisecond).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		http.SetAuthToken(token)
	}

	return &Client{http: http, url: url}
}

// SendInvitation delivers an invitation email. Never returns an error:
// delivery failures are logged at WARN and must not fail the invitation.
func (c *Client) SendInvitation(ctx context.Context, email InvitationEmail) {
	if c.url == "" {
		log.Debug().Str("to", email.To).Msg("Mailer disabled, skipping invitation email")
		return
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(email).
		Post(c.url)
	if err != nil {
		log.Warn().Err(err).Str("to", email.To).Msg("Failed to send invitation email")
		return
	}

	if resp.IsError() {
		log.Warn().
			Int("status_code", resp.StatusCode()).
			Str("to", email.To).
			Msg("Mail delivery API returned an error")
		return
	}

	log.Debug().Str("to", email.To).Msg("Invitation email sent")
}
