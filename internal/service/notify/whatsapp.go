package notify

import (
	"context"
	"fmt"
	"strings"

	"TradeSentinel/internal/domain/models"
	xhttp "TradeSentinel/pkg/http"
)

// WhatsApp pushes notifications through the CallMeBot gateway.
type WhatsApp struct {
	client  *xhttp.Client
	baseURL string
	phone   string
	apiKey  string
}

func NewWhatsApp(client *xhttp.Client, baseURL, phone, apiKey string) *WhatsApp {
	return &WhatsApp{client: client, baseURL: baseURL, phone: phone, apiKey: apiKey}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, n models.Notification) error {
	var body []byte
	err := w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    w.baseURL,
		QueryParams: map[string][]string{
			"phone":  {w.phone},
			"apikey": {w.apiKey},
			"text":   {plain(n.Text)},
		},
	}, &body)
	if err != nil {
		return fmt.Errorf("whatsapp send: %s", strings.ReplaceAll(err.Error(), w.apiKey, "***"))
	}
	return nil
}

// plain strips the Markdown markers WhatsApp would print literally.
func plain(s string) string {
	return strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
}
