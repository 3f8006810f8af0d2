package dedup

// Option configures a Ledger.
type Option func(*Ledger)

// WithWindowSize sets the capacity of both windows. Values below 1 keep
// the default.
func WithWindowSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.cap = n
		}
	}
}
