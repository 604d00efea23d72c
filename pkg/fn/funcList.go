package fn

// FuncList collects cleanup functions.
type FuncList []func()

// ToFunction returns a function that executes all added functions.
//
// Functions are executed in reverse order they were added.
func (c FuncList) ToFunction() func() {
	return c.Execute
}

// Execute runs all added functions, last added first.
func (c FuncList) Execute() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}
