package models

type fieldState uint8

const (
	fieldAbsent fieldState = iota
	fieldNull
	fieldValue
)

// Field is a partial-update value. The zero value is absent and means the
// stored column must be left untouched; Null clears it; Set writes a value.
type Field[T any] struct {
	value T
	state fieldState
}

// Set returns a field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, state: fieldValue}
}

// Null returns a field that clears the stored value.
func Null[T any]() Field[T] {
	return Field[T]{state: fieldNull}
}

// FromPtr returns Set(*p), or Null when p is nil.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

// IsSet reports whether the field carries an opinion, value or null.
func (f Field[T]) IsSet() bool {
	return f.state != fieldAbsent
}

// IsNull reports whether the field explicitly clears the value.
func (f Field[T]) IsNull() bool {
	return f.state == fieldNull
}

// Get returns the value and whether one is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == fieldValue
}

// Ptr returns a pointer to the value, nil when absent or null.
func (f Field[T]) Ptr() *T {
	if f.state != fieldValue {
		return nil
	}
	v := f.value
	return &v
}
