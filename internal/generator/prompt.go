package generator

import (
	"fmt"

	"imagemeta/internal/domain"
)

// BuildPrompt returns the instruction sent with every image. The same limits
// always produce the same text.
func BuildPrompt(limits domain.Limits) string {
	limits = normalizeLimits(limits)
	return fmt.Sprintf(`Analyze this image and generate metadata in JSON format with these fields:
- "title": A descriptive title (at most %d words)
- "keywords": Comma-separated relevant keywords (at most %d items)
- "description": A detailed description (at most %d words)

Return only the JSON object with no surrounding text, like this:
{"title": "...", "keywords": "...", "description": "..."}`,
		limits.TitleWords, limits.KeywordCount, limits.DescriptionWords)
}

func normalizeLimits(limits domain.Limits) domain.Limits {
	defaults := domain.DefaultLimits()
	if limits.TitleWords <= 0 {
		limits.TitleWords = defaults.TitleWords
	}
	if limits.KeywordCount <= 0 {
		limits.KeywordCount = defaults.KeywordCount
	}
	if limits.DescriptionWords <= 0 {
		limits.DescriptionWords = defaults.DescriptionWords
	}
	return limits
}
