// Package sanitize turns raw worker error text into messages that are safe to
// show to viewers. Known failures map to a stable error code and a
// suggestion; anything else is passed through with infrastructure details
// redacted.
package sanitize

import (
	"regexp"
	"strings"
)

// StreamError viewer-facing description of a worker failure
type StreamError struct {
	UserMessage string `json:"userMessage"`
	Suggestion  string `json:"suggestion"`
	ErrorCode   string `json:"errorCode"`
}

type rule struct {
	keywords []string
	result   StreamError
}

type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// Sanitizer classifies and redacts worker error messages
type Sanitizer struct {
	rules             []rule
	sensitivePatterns []*sensitivePattern
}

// DefaultStreamError used when no rule matches
var DefaultStreamError = StreamError{
	UserMessage: "Video analysis stopped unexpectedly",
	Suggestion:  "Please restart the stream; contact support if it keeps failing",
	ErrorCode:   "STREAM_ERROR",
}

// streamErrorRules are checked in order; the first rule with a keyword found
// in the lowercased message wins.
var streamErrorRules = []rule{
	{
		keywords: []string{"403", "401", "forbidden", "unauthorized", "signature", "expired"},
		result: StreamError{
			UserMessage: "The video could not be accessed",
			Suggestion:  "The link may have expired; reload the page to get a fresh one",
			ErrorCode:   "VIDEO_ACCESS_DENIED",
		},
	},
	{
		keywords: []string{"404", "not found", "no such file"},
		result: StreamError{
			UserMessage: "The video was not found",
			Suggestion:  "Check that the video URL is correct",
			ErrorCode:   "VIDEO_NOT_FOUND",
		},
	},
	{
		keywords: []string{"unsupported", "codec", "invalid data", "moov atom"},
		result: StreamError{
			UserMessage: "The video format is not supported",
			Suggestion:  "Try an H.264 MP4 or HLS stream",
			ErrorCode:   "VIDEO_UNSUPPORTED",
		},
	},
	{
		keywords: []string{"out of memory", "cuda", "oomkilled"},
		result: StreamError{
			UserMessage: "The analysis worker ran out of resources",
			Suggestion:  "Please try again in a moment",
			ErrorCode:   "WORKER_RESOURCES",
		},
	},
	{
		keywords: []string{"timeout", "timed out", "deadline"},
		result: StreamError{
			UserMessage: "The video took too long to load",
			Suggestion:  "Check your connection and restart the stream",
			ErrorCode:   "VIDEO_TIMEOUT",
		},
	},
	{
		keywords: []string{"connection refused", "connection reset", "no route to host", "network"},
		result: StreamError{
			UserMessage: "The video source is unreachable",
			Suggestion:  "Please try again later",
			ErrorCode:   "VIDEO_UNREACHABLE",
		},
	},
}

// NewSanitizer creates a sanitizer with the default rules and patterns
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		rules:             append([]rule(nil), streamErrorRules...),
		sensitivePatterns: buildDefaultSensitivePatterns(),
	}
}

func buildDefaultSensitivePatterns() []*sensitivePattern {
	return []*sensitivePattern{
		// URL credentials must go before the query patterns so the host survives
		{
			pattern:     regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s@]+@`),
			replacement: "${1}[credentials]@",
			description: "URL user info",
		},
		// Signed URL parameters (S3, GCS, CloudFront, generic tokens)
		{
			pattern:     regexp.MustCompile(`(?i)([?&](?:x-amz-[a-z-]+|x-goog-[a-z-]+|signature|sig|token|access_token|key|api_key|policy|key-pair-id|expires)=)[^&\s"']+`),
			replacement: "${1}[redacted]",
			description: "signed URL parameter",
		},
		{
			pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/=-]+`),
			replacement: "Bearer [redacted]",
			description: "bearer token",
		},
		// Private IPv4 ranges: 10.x.x.x, 172.16-31.x.x, 192.168.x.x
		{
			pattern:     regexp.MustCompile(`\b10\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d+)?\b`),
			replacement: "[internal-ip]",
			description: "10.x.x.x private IP",
		},
		{
			pattern:     regexp.MustCompile(`\b172\.(?:1[6-9]|2[0-9]|3[0-1])\.\d{1,3}\.\d{1,3}(?::\d+)?\b`),
			replacement: "[internal-ip]",
			description: "172.16-31.x.x private IP",
		},
		{
			pattern:     regexp.MustCompile(`\b192\.168\.\d{1,3}\.\d{1,3}(?::\d+)?\b`),
			replacement: "[internal-ip]",
			description: "192.168.x.x private IP",
		},
		{
			pattern:     regexp.MustCompile(`\blocalhost:\d+\b`),
			replacement: "[internal-host]",
			description: "loopback address",
		},
		// Absolute paths on the worker host
		{
			pattern:     regexp.MustCompile(`(?:^|\s)(/(?:home|root|tmp|var|opt|srv|mnt|data)/[^\s:'"]+)`),
			replacement: " [path]",
			description: "filesystem path",
		},
		{
			pattern:     regexp.MustCompile(`\b[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}\b`),
			replacement: "[uuid]",
			description: "UUID",
		},
	}
}

// Classify maps a worker message to a viewer-facing error
func (s *Sanitizer) Classify(message string) StreamError {
	lower := strings.ToLower(message)
	for _, r := range s.rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.result
			}
		}
	}
	return DefaultStreamError
}

// SanitizeSensitiveInfo redacts credentials, internal addresses and host paths
func (s *Sanitizer) SanitizeSensitiveInfo(message string) string {
	if message == "" {
		return message
	}
	result := message
	for _, sp := range s.sensitivePatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replacement)
	}
	return strings.TrimSpace(result)
}

// AddRule registers a rule ahead of the defaults
func (s *Sanitizer) AddRule(keywords []string, result StreamError) {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	s.rules = append([]rule{{keywords: lowered, result: result}}, s.rules...)
}

// AddSensitivePattern adds a custom redaction pattern
func (s *Sanitizer) AddSensitivePattern(pattern *regexp.Regexp, replacement, description string) {
	s.sensitivePatterns = append(s.sensitivePatterns, &sensitivePattern{
		pattern:     pattern,
		replacement: replacement,
		description: description,
	})
}
