package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/pipeline"
)

const telegramAPI = "https://api.telegram.org"

// TelegramWriter sends the ranking to a Telegram chat via the Bot API.
type TelegramWriter struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewTelegramWriter(token, chatID string) *TelegramWriter {
	return &TelegramWriter{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{},
	}
}

func (tw *TelegramWriter) WriteResult(res pipeline.Result) error {
	var b strings.Builder
	for _, notice := range Notices(res) {
		fmt.Fprintf(&b, "_%s_\n", escapeMarkdown(notice))
	}
	if len(res.Results) == 0 {
		b.WriteString(escapeMarkdown("Nenhum disco encontrado."))
		return tw.send(b.String())
	}

	fmt.Fprintf(&b, "*%s*\n\n", escapeMarkdown(fmt.Sprintf("Os %d discos mais baratos:", len(res.Results))))
	for i, l := range res.Results {
		b.WriteString(formatListing(i+1, l, res.Currency))
	}

	// Top N fica bem abaixo do limite de 4096 caracteres do Telegram.
	return tw.send(b.String())
}

func formatListing(n int, l model.Listing, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\\. %s*\n", n, escapeMarkdown(l.Name))
	fmt.Fprintf(&b, "Preço: %s\n", escapeMarkdown(FormatPrice(l, currency)))
	fmt.Fprintf(&b, "Condição: %s\n", escapeMarkdown(l.Condition))
	fmt.Fprintf(&b, "Fonte: %s\n", escapeMarkdown(l.Source))
	if l.Link != "" {
		fmt.Fprintf(&b, "[Ver anúncio](%s)\n", escapeLinkURL(l.Link))
	}
	b.WriteString("\n")
	return b.String()
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
		">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
		".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside a link
// target.
func escapeLinkURL(s string) string {
	return strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(s)
}

func (tw *TelegramWriter) send(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tw.baseURL, tw.token)

	payload := map[string]string{
		"chat_id":    tw.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshaling payload: %w", err)
	}

	resp, err := tw.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error %d: %v", resp.StatusCode, result["description"])
	}

	return nil
}
