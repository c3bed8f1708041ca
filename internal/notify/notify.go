// Package notify posts operator alerts to Slack.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"vehiclereport/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Slack posts plain-text messages to one channel.
type Slack struct {
	api     *slack.Client
	channel string
	log     logrus.FieldLogger
}

type SlackOption func(*slackOptions)

type slackOptions struct {
	httpClient *http.Client
	apiURL     string
}

func WithHTTPClient(c *http.Client) SlackOption {
	return func(o *slackOptions) { o.httpClient = c }
}

// WithAPIURL points the client at another Slack API root, such as a test server.
func WithAPIURL(url string) SlackOption {
	return func(o *slackOptions) { o.apiURL = url }
}

func NewSlack(token, channel string, log logrus.FieldLogger, opts ...SlackOption) *Slack {
	var o slackOptions
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []slack.Option
	if o.httpClient != nil {
		clientOpts = append(clientOpts, slack.OptionHTTPClient(o.httpClient))
	}
	if o.apiURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(o.apiURL))
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Slack{api: slack.New(token, clientOpts...), channel: channel, log: log}
}

func (s *Slack) Notify(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		s.log.WithError(err).WithField("channel", s.channel).Warn("operator notification failed")
		return fmt.Errorf("post to %s: %w", s.channel, err)
	}
	return nil
}

// ReportFailure renders the operator alert for a report that could not be generated.
func ReportFailure(r domain.Report, cause error, refunded bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: %s report %s failed for %d %s %s (mileage %d)", r.Tier, r.UUID, r.Year, r.Make, r.Model, r.Mileage)
	if r.UserID != nil {
		fmt.Fprintf(&b, ", user %d", *r.UserID)
	}
	if cause != nil {
		fmt.Fprintf(&b, "\nError: %v", cause)
	}
	if refunded {
		b.WriteString("\nCredits were refunded.")
	}
	return b.String()
}
