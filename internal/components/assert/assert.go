package assert

import (
	"fmt"
	"strings"
)

func describe(names []string) string {
	if len(names) == 0 {
		return "value"
	}
	return strings.Join(names, " ")
}

// NotNil panics if value is nil, names are used to describe the value in the panic message.
func NotNil(value any, names ...string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", describe(names)))
	}
}

func NotEmptyStr(str string, names ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", describe(names)))
	}
}

func Positive[T ~int | ~int64 | ~float64](value T, names ...string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %v", describe(names), value))
	}
}
