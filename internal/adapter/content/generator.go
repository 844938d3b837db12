package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polkiloo/orderpipeline/internal/adapter/completion"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

const instructions = `You write short order confirmation emails for an online store.
Use the order described by the JSON input. Keep the body under 100 words and friendly.
Respond with a JSON object only: {"subject": string, "body": string}.`

var errEmptyContent = errors.New("generated subject or body is empty")

// Email is a rendered notification.
type Email struct {
	Subject string
	Body    string
}

// Generator renders notification text with the completion API.
type Generator struct {
	client  completion.Client
	timeout time.Duration
}

// NewGenerator creates content generator bounded by timeout.
func NewGenerator(client completion.Client, timeout time.Duration) *Generator {
	return &Generator{client: client, timeout: timeout}
}

// Generate returns generated content, or an error when the API is unavailable or the answer unusable.
func (g *Generator) Generate(ctx context.Context, event model.OrderEvent) (Email, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	input, err := json.Marshal(event)
	if err != nil {
		return Email{}, fmt.Errorf("encode order facts: %w", err)
	}

	text, err := g.client.Complete(ctx, completion.Request{
		Instructions: instructions,
		Input:        string(input),
		Temperature:  0.7,
		MaxTokens:    300,
	})
	if err != nil {
		return Email{}, err
	}

	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := completion.DecodeJSON(text, &out); err != nil {
		return Email{}, err
	}

	email := Email{Subject: strings.TrimSpace(out.Subject), Body: strings.TrimSpace(out.Body)}
	if email.Subject == "" || email.Body == "" {
		return Email{}, errEmptyContent
	}
	return email, nil
}

// Fallback renders content from the order fields alone.
func Fallback(event model.OrderEvent) Email {
	return Email{
		Subject: fmt.Sprintf("Order %s received", event.OrderID),
		Body: fmt.Sprintf(
			"Thank you for your order.\n\nOrder ID: %s\nProduct: %s\nQuantity: %d\nTotal: %s\n\nWe will let you know once it ships.",
			event.OrderID, event.ProductID, event.Quantity, event.TotalAmount.StringFixed(2)),
	}
}
