package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"TradeSentinel/internal/domain/models"
	xhttp "TradeSentinel/pkg/http"
)

// Telegram pushes notifications through the Bot API sendMessage call.
type Telegram struct {
	client  *xhttp.Client
	baseURL string
	token   string
	chatID  string
}

func NewTelegram(client *xhttp.Client, baseURL, token, chatID string) *Telegram {
	return &Telegram{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
	}
}

func (t *Telegram) Name() string { return "telegram" }

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, n models.Notification) error {
	var reply telegramReply
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token),
		Body: map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       n.Text,
			"parse_mode": "Markdown",
		},
	}, &reply)
	if err != nil {
		// the request URL carries the token
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			return fmt.Errorf("telegram send: status %d", se.Code)
		}
		return fmt.Errorf("telegram send: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	if !reply.OK {
		return fmt.Errorf("telegram send: %s", reply.Description)
	}
	return nil
}
