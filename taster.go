package filescan

// Taste is the classification of one blob.
type Taste struct {
	// MIME is the best single MIME guess.
	MIME string
	// Flavors are all match names, MIME first, then signature rules, then
	// filename patterns, without duplicates.
	Flavors []string
}

// Taster classifies content into flavors. Implementations must be pure and
// safe for concurrent use; a matcher fault yields no flavors rather than an
// error.
type Taster interface {
	Taste(data []byte, name string) Taste
}

// TasterFunc adapts a function to the Taster interface.
type TasterFunc func(data []byte, name string) Taste

func (f TasterFunc) Taste(data []byte, name string) Taste { return f(data, name) }
