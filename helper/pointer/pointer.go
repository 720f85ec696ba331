// Package pointer provides helper functions related to Go pointers.
package pointer

// Of returns a pointer to a.
func Of[A any](a A) *A {
	return &a
}

// Copy returns a new pointer to a, or nil if a is nil.
func Copy[A any](a *A) *A {
	if a == nil {
		return nil
	}
	b := *a
	return &b
}
