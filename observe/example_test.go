package observe_test

import (
	"context"
	"fmt"
	"os"

	"github.com/jonwraymond/sqlops/observe"
)

func ExampleOperation_SpanName() {
	op := observe.Operation{Component: "warehouse", Name: "connect"}
	fmt.Println(op.SpanName())
	// Output: sqlops.warehouse.connect
}

func ExampleParseLevel() {
	lvl, _ := observe.ParseLevel("WARNING")
	fmt.Println(lvl)
	// Output: warn
}

func ExampleNewMiddleware() {
	logger := observe.NewLoggerWithWriter("error", os.Stdout)
	mw := observe.NewMiddleware(observe.NopTracer(), observe.NopMetrics(), logger)

	err := mw.Observe(context.Background(), observe.Operation{Name: "noop"}, func(context.Context) error {
		return nil
	})
	fmt.Println(err)
	// Output: <nil>
}
