// Package domain contains the user aggregate and the value objects it is built
// from. Every value is validated once, at construction, and is immutable
// afterwards; the aggregate only changes through its own behavior methods.
// The package has no knowledge of storage or transport.
package domain
