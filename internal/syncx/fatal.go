package syncx

// fatalHook, if set, is called instead of panicking - used by tests that
// want to assert an invariant violation was detected without crashing the
// test binary.
var fatalHook func(msg string)

func fatal(msg string) {
	if fatalHook != nil {
		fatalHook(msg)
		return
	}
	panic("brcgc: fatal: " + msg)
}
