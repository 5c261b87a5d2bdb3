package result

// Of holds either a value or the error that prevented producing it.
type Of[T any] struct {
	v   T
	err error
}

func (r Of[T]) Unwrap() T {
	if nil != r.err {
		panic("cannot get value of error result")
	}

	return r.v
}

func (r Of[T]) Err() error {
	return r.err
}

// Get returns the value and error pair, with the zero value on error.
func (r Of[T]) Get() (T, error) {
	return r.v, r.err
}

func (r Of[T]) IsOk() bool {
	return nil == r.err
}

func Ok[T any](v T) Of[T] {
	return Of[T]{v: v, err: nil}
}

func Err[T any](err error) Of[T] {
	var zero T
	return Of[T]{v: zero, err: err}
}
