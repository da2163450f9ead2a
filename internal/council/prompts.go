package council

import (
	"fmt"
	"strings"
)

const followUpExcerptRunes = 500

func rankingPrompt(query string, labeled []LabeledResponse) string {
	blocks := make([]string, len(labeled))
	for i, l := range labeled {
		blocks[i] = fmt.Sprintf("%s:\n%s", l.Label, l.Response.Response)
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, query, strings.Join(blocks, "\n\n"))
}

func chairmanPrompt(query string, stage1 []ModelResponse, stage2 []RankingSubmission) string {
	responses := make([]string, len(stage1))
	for i, r := range stage1 {
		responses[i] = fmt.Sprintf("Model: %s\nResponse: %s", displayName(r.Model, r.Instance), r.Response)
	}
	rankings := make([]string, len(stage2))
	for i, r := range stage2 {
		rankings[i] = fmt.Sprintf("Model: %s\nRanking: %s", displayName(r.Model, r.Instance), r.Ranking)
	}

	return fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		query, strings.Join(responses, "\n\n"), strings.Join(rankings, "\n\n"))
}

func titlePrompt(query string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, query)
}

func followUpPrompt(original string, stage1 []ModelResponse, synthesis string, query string) string {
	summaries := make([]string, len(stage1))
	for i, r := range stage1 {
		summaries[i] = fmt.Sprintf("**%s**: %s", displayName(r.Model, r.Instance), excerpt(r.Response, followUpExcerptRunes))
	}

	return fmt.Sprintf(`You are the Chairman of an LLM Council. You previously synthesized an answer after a full council deliberation. The user now has a follow-up question.

ORIGINAL QUESTION: %s

COUNCIL MEMBERS' RESPONSES (summarized):
%s

YOUR PREVIOUS SYNTHESIS:
%s

---

USER'S FOLLOW-UP QUESTION: %s

Please answer the follow-up question. You may draw on the council's prior responses where relevant, or provide new information as needed.`,
		original, strings.Join(summaries, "\n\n"), synthesis, query)
}

// excerpt cuts s to limit characters and marks the cut with "...".
func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func displayName(model string, instance int) string {
	if instance > 1 {
		return fmt.Sprintf("%s (instance %d)", model, instance)
	}
	return model
}
