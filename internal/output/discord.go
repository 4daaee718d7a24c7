package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/pipeline"
)

// DiscordWriter sends the ranking to a Discord channel via Webhook, one
// embed per listing.
type DiscordWriter struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordWriter(webhookURL string) *DiscordWriter {
	return &DiscordWriter{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Fields    []discordField `json:"fields"`
	Thumbnail *discordImage  `json:"thumbnail,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

func (dw *DiscordWriter) WriteResult(res pipeline.Result) error {
	p := discordPayload{Content: fmt.Sprintf("**Os %d discos mais baratos:**", len(res.Results))}
	if len(res.Results) == 0 {
		p.Content = "Nenhum disco encontrado."
	}
	for _, notice := range Notices(res) {
		p.Content += "\n> " + notice
	}

	// Discord aceita até 10 embeds por mensagem.
	for i, l := range res.Results {
		if i == 10 {
			break
		}
		p.Embeds = append(p.Embeds, embedFor(i+1, l, res.Currency))
	}
	return dw.send(p)
}

func embedFor(n int, l model.Listing, currency string) discordEmbed {
	e := discordEmbed{
		Title: fmt.Sprintf("%d. %s", n, l.Name),
		URL:   l.Link,
		Fields: []discordField{
			{Name: "Preço", Value: FormatPrice(l, currency), Inline: true},
			{Name: "Condição", Value: l.Condition, Inline: true},
			{Name: "Fonte", Value: l.Source, Inline: true},
		},
	}
	if l.Image != nil {
		e.Thumbnail = &discordImage{URL: *l.Image}
	}
	return e
}

func (dw *DiscordWriter) send(p discordPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("discord: marshaling payload: %w", err)
	}

	resp, err := dw.client.Post(dw.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord: sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("discord: API error %d: %v", resp.StatusCode, result["message"])
	}

	return nil
}
