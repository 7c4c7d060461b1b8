// Package genai extracts structured receipt data from images using the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

const extractionPrompt = "Extract the purchase information from the following fuel station receipt. " +
	"The station code is the numeric identifier printed after the word ESTACION; do not use the code " +
	"printed after ES ORIGEN, which identifies the origin station instead."

// ticketSchema is the strict JSON schema the model must produce, matching
// models.Ticket.
var ticketSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"total":    map[string]interface{}{"type": "number", "description": "Total amount of fuel purchased, in MXN."},
		"quantity": map[string]interface{}{"type": "number", "description": "Total fuel quantity purchased, in liters."},
		"date":     map[string]interface{}{"type": "string", "description": "Purchase date."},
		"product":  map[string]interface{}{"type": "string", "description": "Type of product purchased."},
		"station":  map[string]interface{}{"type": "integer", "description": "Numeric station code printed after the word ESTACION."},
		"address":  map[string]interface{}{"type": "string", "description": "Address of the station."},
	},
	"required":             []string{"total", "quantity", "date", "product", "station", "address"},
	"additionalProperties": false,
}

// Opts holds configuration options for the extraction client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the extraction client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the vision model used for extraction.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for receipt extraction.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes an extraction client, falling back to the
// OPENAI_API_KEY environment variable when no key option is provided.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: openai.ChatModelGPT4o}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// ExtractTicket runs the vision model over the receipt image at the given URL
// and returns the structured ticket.
func (c *Client) ExtractTicket(ctx context.Context, imageURL string) (models.Ticket, error) {
	slog.Debug("Client.ExtractTicket: extracting receipt", "image_url_set", imageURL != "")

	chat, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Extract the information from this receipt:"),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "fuel_ticket",
					Description: openai.String("Structured record of a fuel station receipt"),
					Schema:      ticketSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("receipt extraction request failed: %w", err)
	}
	if len(chat.Choices) == 0 {
		return models.Ticket{}, fmt.Errorf("receipt extraction returned no choices")
	}

	var ticket models.Ticket
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &ticket); err != nil {
		return models.Ticket{}, fmt.Errorf("malformed extraction payload: %w", err)
	}
	return ticket, nil
}
