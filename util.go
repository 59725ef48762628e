package lf

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func nonNil[T any](v *T) *T {
	if v == nil {
		panic("nil")
	}
	return v
}
