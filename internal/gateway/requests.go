package gateway

import (
	"fmt"
	"net/url"

	"github.com/af-corp/llmcache/internal/httputil"
	"github.com/af-corp/llmcache/internal/llmcache"
)

type messageBody struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

type chatBody struct {
	Model    *string       `json:"model"`
	Messages []messageBody `json:"messages"`
	Cache    *bool         `json:"cache"`
}

type completionBody struct {
	Prompt   *string        `json:"prompt"`
	Context  map[string]any `json:"context"`
	Metadata map[string]any `json:"metadata"`
	Cache    *bool          `json:"cache"`
}

type visionBody struct {
	Model     *string  `json:"model"`
	Prompt    *string  `json:"prompt"`
	ImageURLs []string `json:"image_urls"`
	Cache     *bool    `json:"cache"`
}

// cacheEnabled reads the optional cache flag, which defaults to true.
func cacheEnabled(flag *bool) bool {
	return flag == nil || *flag
}

// modelOr returns the requested model or def when none was given.
func modelOr(model *string, def string) string {
	if model == nil || *model == "" {
		return def
	}
	return *model
}

// metadataModelKey selects the completion model from request metadata.
const metadataModelKey = "llm_model"

// completionModel returns the model named in metadata, or def. The returned
// metadata drops the naming key, so an explicit default model and an omitted
// one share a cache entry. A non-string value is left alone and ignored.
func completionModel(metadata map[string]any, def string) (string, map[string]any) {
	name, ok := metadata[metadataModelKey].(string)
	if !ok {
		return def, metadata
	}
	rest := make(map[string]any, len(metadata)-1)
	for k, v := range metadata {
		if k != metadataModelKey {
			rest[k] = v
		}
	}
	if name == "" {
		name = def
	}
	return name, rest
}

const fieldRequired = "field required"

func (b chatBody) validate() ([]llmcache.Message, []httputil.FieldError) {
	var errs []httputil.FieldError
	if b.Messages == nil {
		return nil, append(errs, httputil.FieldError{Field: "messages", Message: fieldRequired})
	}

	msgs := make([]llmcache.Message, 0, len(b.Messages))
	for i, m := range b.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		if m.Role == nil {
			errs = append(errs, httputil.FieldError{Field: field + ".role", Message: fieldRequired})
		}
		if m.Content == nil {
			errs = append(errs, httputil.FieldError{Field: field + ".content", Message: fieldRequired})
		}
		if m.Role == nil || m.Content == nil {
			continue
		}
		role, ok := llmcache.ParseRole(*m.Role)
		if !ok {
			errs = append(errs, httputil.FieldError{Field: field + ".role", Message: "must be one of system, user, assistant"})
			continue
		}
		msgs = append(msgs, llmcache.Message{Role: role, Content: *m.Content})
	}
	return msgs, errs
}

func (b completionBody) validate() []httputil.FieldError {
	if b.Prompt == nil {
		return []httputil.FieldError{{Field: "prompt", Message: fieldRequired}}
	}
	return nil
}

func (b visionBody) validate() []httputil.FieldError {
	var errs []httputil.FieldError
	if b.Prompt == nil {
		errs = append(errs, httputil.FieldError{Field: "prompt", Message: fieldRequired})
	}
	if b.ImageURLs == nil {
		return append(errs, httputil.FieldError{Field: "image_urls", Message: fieldRequired})
	}
	for i, raw := range b.ImageURLs {
		if !isHTTPURL(raw) {
			errs = append(errs, httputil.FieldError{
				Field:   fmt.Sprintf("image_urls[%d]", i),
				Message: "must be an absolute http or https URL",
			})
		}
	}
	return errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
