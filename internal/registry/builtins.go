package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskflow/internal/value"
)

// Builtins returns a sealed Registry of example functions used by the CLI,
// the isolated worker, and the CLI tests: arithmetic, sleep, a fetch-shaped
// stub (no network access), identity, and a deterministic always-failing
// function for exercising retry/skip paths.
func Builtins() *Registry {
	r := New()

	r.Register("math:add", func(_ context.Context, args []value.Value) (value.Value, error) {
		var sum float64
		allInt := true
		var isum int64
		for _, a := range args {
			if i, ok := a.Int(); ok {
				isum += i
				sum += float64(i)
				continue
			}
			if f, ok := a.Float(); ok {
				sum += f
				allInt = false
				continue
			}
			return value.Value{}, fmt.Errorf("math:add: argument is not numeric: %s", a.GoString())
		}
		if allInt {
			return value.Int(isum), nil
		}
		return value.Float(sum), nil
	})

	r.Register("util:sleep", func(ctx context.Context, args []value.Value) (value.Value, error) {
		seconds := 0.0
		if len(args) > 0 {
			if f, ok := args[0].Float(); ok {
				seconds = f
			} else if i, ok := args[0].Int(); ok {
				seconds = float64(i)
			}
		}
		select {
		case <-time.After(time.Duration(seconds * float64(time.Second))):
			return value.Null(), nil
		case <-ctx.Done():
			return value.Value{}, ctx.Err()
		}
	})

	r.Register("util:fetch_stub", func(_ context.Context, args []value.Value) (value.Value, error) {
		url := "<unknown>"
		if len(args) > 0 {
			if s, ok := args[0].String(); ok {
				url = s
			}
		}
		return value.Map(map[string]value.Value{
			"url":    value.String(url),
			"status": value.Int(200),
			"body":   value.String("stub response"),
		}), nil
	})

	r.Register("util:always_fail", func(_ context.Context, args []value.Value) (value.Value, error) {
		msg := "always_fail: deliberate failure"
		if len(args) > 0 {
			if s, ok := args[0].String(); ok {
				msg = s
			}
		}
		return value.Value{}, errors.New(msg)
	})

	r.Register("util:identity", func(_ context.Context, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Null(), nil
		}
		return args[0], nil
	})

	r.Seal()
	return r
}
