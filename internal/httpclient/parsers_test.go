package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOpenAIRateLimitHeaders_ExtractsRetryAfterAndRemaining(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	h.Set("x-ratelimit-remaining-requests", "12")
	h.Set("x-ratelimit-remaining-tokens", "3400")

	info := ParseOpenAIRateLimitHeaders(h)
	assert.Equal(t, 5*time.Second, info.RetryAfter)
	assert.Equal(t, 12, info.RequestsRemaining)
	assert.Equal(t, 3400, info.TokensRemaining)
}

func TestParseOpenAIRateLimitHeaders_EmptyHeadersYieldZeroValue(t *testing.T) {
	info := ParseOpenAIRateLimitHeaders(http.Header{})
	assert.Equal(t, RateLimitInfo{}, info)
}

func TestParseAnthropicRateLimitHeaders_ExtractsRetryAfterAndRemaining(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "10")
	h.Set("anthropic-ratelimit-requests-remaining", "7")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "1000")
	h.Set("anthropic-ratelimit-output-tokens-remaining", "500")

	info := ParseAnthropicRateLimitHeaders(h)
	assert.Equal(t, 10*time.Second, info.RetryAfter)
	assert.Equal(t, 7, info.RequestsRemaining)
	assert.Equal(t, 1000, info.InputTokensRemaining)
	assert.Equal(t, 500, info.OutputTokensRemaining)
}
