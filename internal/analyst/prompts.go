package analyst

import (
	"fmt"
	"strings"

	"github.com/insightlab/analyst/models"
)

const qaSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the retrieved context to answer the question. If you don't know, say that you don't know."

func qaUserPrompt(question, context string, history []models.Message) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("CONVERSATION HISTORY:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "CONTEXT:\n%s\n\nQUESTION: %s", context, question)
	return b.String()
}

func swotPrompt(topic, context string) string {
	return fmt.Sprintf("Based on the following context about '%s', conduct a SWOT analysis. "+
		"Present the output as a structured JSON object with keys 'strengths', 'weaknesses', "+
		"'opportunities', and 'threats', each an array of strings. "+
		"Respond ONLY with the JSON object.\n\nContext:\n%s", topic, context)
}

func evolutionPrompt(topic, olderContext, newerContext string) string {
	return fmt.Sprintf("Analyze the evolution of the narrative on '%s' between two documents. "+
		"Return a JSON object with keys: 'sentiment_change' (string), 'new_information' (array of strings), "+
		"'dropped_points' (array of strings), 'summary_of_evolution' (string). "+
		"Respond ONLY with the JSON object.\n\n"+
		"Document 1 (Older Context):\n%s\n\nDocument 2 (Newer Context):\n%s",
		topic, olderContext, newerContext)
}

func memoPrompt(topic, context string) string {
	return fmt.Sprintf("Based on the context about '%s', generate a professional investment memo. "+
		"Return a JSON object with keys: 'investment_thesis' (string), 'positive_catalysts' (array of strings), "+
		"'key_risks' (array of strings), 'conclusion' (string). "+
		"Respond ONLY with the JSON object.\n\nContext:\n%s", topic, context)
}

func marketContextPrompt(company, news string) string {
	return fmt.Sprintf("You are a market analyst. Based on the recent news, generate a market context "+
		"report for '%s'. Return a JSON object with keys: 'overall_sentiment' (string), "+
		"'key_competitor_moves' (array of strings), 'major_industry_trends' (array of strings). "+
		"Respond ONLY with the JSON object.\n\nNEWS:\n%s", company, news)
}

func seriesPrompt(topic string, dataPoints []string, context string) string {
	return fmt.Sprintf("From the context about '%s', extract these data points: %s. "+
		"Return a JSON object where keys are time periods and values are objects mapping data point "+
		"names to numbers. Example: {\"Q1 2024\": {\"Sales\": 10000}, \"Q2 2024\": {\"Sales\": 12000}}. "+
		"Respond ONLY with the JSON object.\n\nContext:\n%s",
		topic, strings.Join(dataPoints, ", "), context)
}

// joinContext flattens retrieval hits into the context block passed to
// the model.
func joinContext(hits []models.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n\n")
}

// dedupeOrigins returns the distinct source origins of the hits in first-seen
// order, for citation lists.
func dedupeOrigins(hits []models.SearchHit) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if h.Origin == "" {
			continue
		}
		if _, ok := seen[h.Origin]; ok {
			continue
		}
		seen[h.Origin] = struct{}{}
		out = append(out, h.Origin)
	}
	return out
}
