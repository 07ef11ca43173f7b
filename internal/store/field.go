package store

// Field is the Go-native replacement for the Rust ActiveValue::NotSet/Set
// discriminator referenced in the design notes: a mutable proposal column
// that a given event path either knows (Set) or does not touch (Unchanged).
// Upsert generation iterates fields and only emits assignment clauses for
// those with Set == true, so an Unchanged field is never overwritten.
type Field[T any] struct {
	Set   bool
	Value T
}

// SetField returns a Field carrying value, marked Set.
func SetField[T any](value T) Field[T] {
	return Field[T]{Set: true, Value: value}
}

// UnsetField returns a Field marked Unchanged.
func UnsetField[T any]() Field[T] {
	return Field[T]{}
}
