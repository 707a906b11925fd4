package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbd888/riskwatch/internal/risk"
	"github.com/mbd888/riskwatch/internal/transaction"
)

const promptTemplate = `You are a financial risk analyst. Evaluate this transaction and return a risk score (0.0-1.0).

Transaction Data:
%s

Consider these risk factors:
- Geographic anomalies (high-risk countries (%s) vs customer country vs payment country)
- Unusual amounts for merchant category
- Payment method risks
- IP/location inconsistencies
- Merchant category and typical fraud rates
- Merchant's history and reputation

Respond ONLY in this JSON format:
{
    "risk_score": 0.0,
    "risk_factors": ["list", "of", "factors"],
    "reasoning": "brief explanation",
    "recommended_action": "allow|review|block"
}

Risk thresholds: 0.0-0.3 = allow, 0.3-0.7 = review, 0.7-1.0 = block`

// buildPrompt renders the analyst prompt with the transaction embedded as
// indented JSON.
func buildPrompt(tx *transaction.Transaction) string {
	txJSON, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		// Transaction came from a successful decode, so this cannot fire;
		// keep the prompt usable anyway.
		txJSON = []byte("{}")
	}
	return fmt.Sprintf(promptTemplate, txJSON, strings.Join(risk.HighRiskCountries, ", "))
}

func buildRequest(model string, tx *transaction.Transaction) chatRequest {
	return chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(tx)}},
		Temperature: 0.1,
		MaxTokens:   300,
	}
}
