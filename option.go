package chatbridge

// Option configures ResolveConfig (functional options pattern).
type Option func(*options)

type options struct {
	separator   string
	thinkToken  string
	searchToken string
}

func defaultOptions() options {
	return options{separator: "_", thinkToken: "think", searchToken: "search"}
}

// WithModelSeparator sets the separator between model id tokens. Empty values are ignored.
func WithModelSeparator(sep string) Option {
	return func(o *options) {
		if sep != "" {
			o.separator = sep
		}
	}
}

// WithSuffixTokens sets the suffix tokens that toggle thinking and searching.
// Empty values keep the defaults.
func WithSuffixTokens(think, search string) Option {
	return func(o *options) {
		if think != "" {
			o.thinkToken = think
		}
		if search != "" {
			o.searchToken = search
		}
	}
}
