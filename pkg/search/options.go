package search

// Defaults for Options.
const (
	DefaultTieBreak        = 1.001
	DefaultReopenThreshold = 0.01
)

// Options defines parameters for a search.
type Options struct {
	// TieBreak multiplies the heuristic. Values slightly above 1 favour
	// straight-looking paths among equal-cost candidates.
	TieBreak float64
	// ReopenThreshold is how much cheaper a new route to a closed node must be
	// before the node is reopened.
	ReopenThreshold float64
	// MaxExpansions stops the search with ErrExpansionLimit after this many
	// expansions. 0 means unbounded.
	MaxExpansions int
}

// Option is a function that modifies Options.
type Option func(*Options)

// WithTieBreak sets the heuristic tie-break multiplier.
func WithTieBreak(v float64) Option {
	return func(o *Options) { o.TieBreak = v }
}

// WithReopenThreshold sets the reopen threshold.
func WithReopenThreshold(v float64) Option {
	return func(o *Options) { o.ReopenThreshold = v }
}

// WithMaxExpansions caps the number of expansions.
func WithMaxExpansions(n int) Option {
	return func(o *Options) { o.MaxExpansions = n }
}

func buildOptions(options []Option) Options {
	opts := Options{
		TieBreak:        DefaultTieBreak,
		ReopenThreshold: DefaultReopenThreshold,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.TieBreak <= 0 {
		opts.TieBreak = 1
	}
	if opts.ReopenThreshold < 0 {
		opts.ReopenThreshold = 0
	}
	return opts
}
