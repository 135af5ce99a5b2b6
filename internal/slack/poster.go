// Package slack posts operator alerts for administrative ledger events.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// alertKinds are the events operators are told about. Rating traffic is
// not alerted on.
var alertKinds = map[ledger.EventKind]bool{
	ledger.EventRatingSlashed:   true,
	ledger.EventRefundClaimed:   true,
	ledger.EventPaused:          true,
	ledger.EventUnpaused:        true,
	ledger.EventMaxStakeUpdated: true,
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// HandleEvent is a NATS handler for ledger events. Events outside
// alertKinds are ignored.
func (p *Poster) HandleEvent(subject string, data []byte) {
	var ev ledger.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		p.logger.Warn("failed to decode ledger event", "subject", subject, "error", err)
		return
	}
	if !alertKinds[ev.Kind] {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.PostAlert(ctx, formatAlert(ev)); err != nil {
		p.logger.Warn("failed to post slack alert", "kind", ev.Kind, "error", err)
	}
}

// PostAlert posts text to the alert channel and returns the message
// timestamp.
func (p *Poster) PostAlert(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted alert to slack", "ts", slackResp.TS)
	return slackResp.TS, nil
}

func formatAlert(ev ledger.Event) string {
	var sb strings.Builder

	switch ev.Kind {
	case ledger.EventRatingSlashed:
		sb.WriteString(":warning: *Rating slashed*\n")
	case ledger.EventRefundClaimed:
		sb.WriteString(":moneybag: *Refund claimed*\n")
	case ledger.EventPaused:
		sb.WriteString(":octagonal_sign: *Ledger paused*\n")
	case ledger.EventUnpaused:
		sb.WriteString(":white_check_mark: *Ledger unpaused*\n")
	case ledger.EventMaxStakeUpdated:
		sb.WriteString(":gear: *Stake ceiling changed*\n")
	default:
		fmt.Fprintf(&sb, "*%s*\n", ev.Kind)
	}

	fmt.Fprintf(&sb, "*By:* %s\n", ev.Caller)
	if ev.Entity != nil {
		fmt.Fprintf(&sb, "*Entity:* `%s`\n", ev.Entity)
	}
	if ev.Index != nil {
		fmt.Fprintf(&sb, "*Rating:* #%d\n", *ev.Index)
	}
	if ev.Stake > 0 {
		fmt.Fprintf(&sb, "*Stake:* %d\n", ev.Stake)
	}
	if ev.MaxStake > 0 {
		fmt.Fprintf(&sb, "*New ceiling:* %d\n", ev.MaxStake)
	}
	if ev.TrustScore != nil {
		fmt.Fprintf(&sb, "*Trust score now:* %d\n", *ev.TrustScore)
	}
	return sb.String()
}
