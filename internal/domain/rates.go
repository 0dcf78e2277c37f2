package domain

import "github.com/shopspring/decimal"

var recommendedRates = map[string]decimal.Decimal{
	"podcast": decimal.RequireFromString("0.1"),
	"music":   decimal.RequireFromString("0.05"),
	"video":   decimal.RequireFromString("0.02"),
	"article": decimal.RequireFromString("0.01"),
	"stream":  decimal.RequireFromString("0.15"),
}

var defaultRecommendedRate = decimal.RequireFromString("0.05")

// RecommendedRate suggests a per-minute streaming rate for a content type.
func RecommendedRate(contentType string) decimal.Decimal {
	if r, ok := recommendedRates[contentType]; ok {
		return r
	}
	return defaultRecommendedRate
}

// ContentTypes lists the content types with a dedicated recommended rate.
func ContentTypes() []string {
	return []string{"podcast", "music", "video", "stream", "article"}
}
