package risk

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/orderpipeline/internal/adapter/completion"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// UnavailableReason is reported when the assessment could not be obtained.
const UnavailableReason = "risk check unavailable"

const instructions = `You are a fraud screening service for an online store.
Assess the order described by the JSON input. Consider unusually large quantities,
amounts inconsistent with the quantity, and obviously fake identifiers.
Respond with a JSON object only: {"isFraudulent": boolean, "reason": string}.`

// Verdict is the advisory outcome of a risk assessment.
type Verdict struct {
	Fraudulent bool
	Reason     string
	// Available is false when the verdict is the fail-open default.
	Available bool
}

// Gate asks the completion API whether an order looks fraudulent.
// Any failure yields a non-fraudulent verdict.
type Gate struct {
	client  completion.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewGate creates risk gate bounded by timeout.
func NewGate(client completion.Client, timeout time.Duration, logger *slog.Logger) *Gate {
	return &Gate{client: client, timeout: timeout, logger: logger}
}

type orderFacts struct {
	CustomerID  string          `json:"customerId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type assessment struct {
	IsFraudulent *bool  `json:"isFraudulent"`
	Reason       string `json:"reason"`
}

// Assess never fails. Timeouts, transport errors and unparseable answers allow the order.
func (g *Gate) Assess(ctx context.Context, intent model.OrderIntent) Verdict {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	input, err := json.Marshal(orderFacts{
		CustomerID:  intent.CustomerID,
		ProductID:   intent.ProductID,
		Quantity:    intent.Quantity,
		TotalAmount: intent.TotalAmount,
	})
	if err != nil {
		return g.failOpen(err)
	}

	text, err := g.client.Complete(ctx, completion.Request{
		Instructions: instructions,
		Input:        string(input),
		Temperature:  0.1,
		MaxTokens:    100,
	})
	if err != nil {
		return g.failOpen(err)
	}

	var result assessment
	if err := completion.DecodeJSON(text, &result); err != nil {
		return g.failOpen(err)
	}
	if result.IsFraudulent == nil {
		return g.failOpen(errMissingVerdict)
	}

	return Verdict{Fraudulent: *result.IsFraudulent, Reason: result.Reason, Available: true}
}

func (g *Gate) failOpen(err error) Verdict {
	g.logger.Warn("risk check failed, allowing order", slog.String("error", err.Error()))
	return Verdict{Reason: UnavailableReason}
}
