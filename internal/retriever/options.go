package retriever

import "strconv"

// SearchOption configures Retrieve and ContextString using the functional
// options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filters map[string]string
}

// WithTopK sets the maximum number of results. Default is DefaultTopK.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithGrade restricts results to one grade level.
func WithGrade(grade int) SearchOption {
	return func(c *searchConfig) {
		c.addFilter("grade", strconv.Itoa(grade))
	}
}

// WithSubject restricts results to one subject. The value is normalized the
// same way stored metadata is, so case and whitespace cannot cause a silent
// filter miss.
func WithSubject(subject string) SearchOption {
	return func(c *searchConfig) {
		c.addFilter("subject", normalize(subject))
	}
}

// WithDocType restricts results to one document type (e.g. "ncert", "pyq").
func WithDocType(docType string) SearchOption {
	return func(c *searchConfig) {
		c.addFilter("doc_type", normalize(docType))
	}
}

// WithFilter adds an arbitrary metadata equality constraint. Multiple
// filters combine conjunctively.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		c.addFilter(normalize(key), normalize(value))
	}
}

func (c *searchConfig) addFilter(key, value string) {
	if value == "" {
		return
	}
	if c.filters == nil {
		c.filters = make(map[string]string)
	}
	c.filters[key] = value
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: DefaultTopK}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
