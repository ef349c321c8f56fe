package evo

// Operator rewrites one candidate key. Implementations must keep the key a
// permutation of the alphabet it was drawn from.
type Operator interface {
	Name() string
	Apply(key string) (string, error)
}
