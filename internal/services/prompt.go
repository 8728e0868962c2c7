package services

import (
	"fmt"
	"strings"
)

// PromptBuilder renders scoring prompts. Output depends only on its inputs.
type PromptBuilder struct {
	scale int
}

func NewPromptBuilder(scale int) *PromptBuilder {
	if scale <= 0 {
		scale = 100
	}
	return &PromptBuilder{scale: scale}
}

// System returns the system message sent alongside free-text prompts.
func (pb *PromptBuilder) System() string {
	return fmt.Sprintf("You are a helpful assistant for CV matching. Provide a score out of %d and a concise explanation.", pb.scale)
}

// BuildStructuredPrompt asks for a single JSON object with match_score and explanation.
func (pb *PromptBuilder) BuildStructuredPrompt(jobDescription, cvText string, jdKeywords, cvKeywords []string) string {
	return fmt.Sprintf(`You are an expert technical recruiter. Compare the candidate CV with the job description.

JOB DESCRIPTION:
%s

CANDIDATE CV:
%s
%s
Follow these steps:
1. Identify the core requirements of the job description (skills, experience, qualifications).
2. Scan the CV for concrete evidence of each requirement.
3. Calculate match_score as an integer between 0 and %d, where 0 means no overlap and %d means every core requirement is clearly met.
4. Write a concise explanation (2-4 sentences) naming the strongest matches and the most important gaps.

Return only a single JSON object, with no markdown and no additional text:
{"match_score": <integer 0-%d>, "explanation": "<text>"}`,
		jobDescription, cvText, keywordSection(jdKeywords, cvKeywords), pb.scale, pb.scale, pb.scale)
}

// BuildFreeTextPrompt asks for "Score:" and "Explanation:" lines.
func (pb *PromptBuilder) BuildFreeTextPrompt(jobDescription, cvText string, jdKeywords, cvKeywords []string) string {
	return fmt.Sprintf(`Job Description:
%s

CV:
%s
%s
Rate how well the CV matches the job description on a scale of 0 to %d.
Respond in exactly this format:
Score: [SCORE]%%
Explanation: [EXPLANATION TEXT]`,
		jobDescription, cvText, keywordSection(jdKeywords, cvKeywords), pb.scale)
}

func keywordSection(jdKeywords, cvKeywords []string) string {
	if len(jdKeywords) == 0 && len(cvKeywords) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nKEYWORDS:\n")
	if len(jdKeywords) > 0 {
		b.WriteString("Job description: ")
		b.WriteString(strings.Join(jdKeywords, ", "))
		b.WriteString("\n")
	}
	if len(cvKeywords) > 0 {
		b.WriteString("CV: ")
		b.WriteString(strings.Join(cvKeywords, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
