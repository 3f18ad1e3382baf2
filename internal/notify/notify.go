// Package notify dispatches new-advert alerts.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adscout/adscout-cli/internal/model"
	"github.com/adscout/adscout-cli/pkg/slack"
)

// titleMaxLen bounds the alert title; listing descriptions can run long.
const titleMaxLen = 60

// Notifier announces newly inserted adverts.
type Notifier interface {
	NotifyNewAdvert(ctx context.Context, c model.Candidate)
}

// SlackNotifier sends one webhook message per new advert. Dispatch failures
// are logged and swallowed: a lost notification must never abort the
// reconciliation pass or roll back the insert that triggered it.
type SlackNotifier struct {
	client      slack.Client
	siteBaseURL string
}

// NewSlackNotifier creates a notifier posting via the given client. A nil
// client disables dispatch.
func NewSlackNotifier(client slack.Client, siteBaseURL string) *SlackNotifier {
	return &SlackNotifier{
		client:      client,
		siteBaseURL: strings.TrimSuffix(siteBaseURL, "/"),
	}
}

// NotifyNewAdvert formats and sends the alert for one advert.
func (n *SlackNotifier) NotifyNewAdvert(ctx context.Context, c model.Candidate) {
	if n.client == nil {
		return
	}

	msg := slack.Message{
		Attachments: []slack.Attachment{{
			Title:     truncate(c.Description, titleMaxLen) + "...",
			TitleLink: n.siteBaseURL + c.URL,
			ThumbURL:  c.ImageURL,
			Text:      fmt.Sprintf("%s, %s, %s", c.Price, c.Type, c.Year),
		}},
	}

	if err := n.client.Send(ctx, msg); err != nil {
		zap.L().Error("notify: failed to send new advert alert",
			zap.String("description", c.Description),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("notify: new advert alert sent",
		zap.String("description", truncate(c.Description, titleMaxLen)),
	)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
