package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/request"
)

const (
	colorError  = 15548997
	colorUpdate = 3066993
)

// Notifier posts embeds to a Discord webhook. All sends are best effort; a
// failed or disabled webhook never affects pipeline control flow.
type Notifier struct {
	webhookURL    string
	enabled       bool
	updateEnabled bool
	client        *request.Client
	logger        zerolog.Logger
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func New(cfg *config.Config) *Notifier {
	return &Notifier{
		webhookURL:    cfg.Discord.WebhookURL,
		enabled:       cfg.Discord.Enabled && cfg.Discord.WebhookURL != "",
		updateEnabled: cfg.Discord.UpdateEnabled,
		client:        request.New(request.WithTimeout(15 * time.Second)),
		logger:        logger.New("notifier"),
	}
}

// Error sends a red embed with the message wrapped in a code block.
func (n *Notifier) Error(title, message string) {
	if !n.enabled {
		return
	}
	n.send(embed{
		Title:       title,
		Description: "```" + message + "```",
		Color:       colorError,
	})
}

// Update sends a green informational embed. These are gated behind their own
// toggle so noisy progress messages can be muted independently of errors.
func (n *Notifier) Update(title, message string) {
	if !n.enabled || !n.updateEnabled {
		return
	}
	n.send(embed{
		Title:       title,
		Description: message,
		Color:       colorUpdate,
	})
}

func (n *Notifier) send(e embed) {
	payload, err := json.Marshal(webhookPayload{Embeds: []embed{e}})
	if err != nil {
		n.logger.Debug().Err(err).Msg("Failed to marshal webhook payload")
		return
	}
	req, err := http.NewRequest(http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Debug().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := n.client.MakeRequest(req); err != nil {
		n.logger.Debug().Err(err).Msg("Failed to deliver webhook")
	}
}
