// Package tool maps declarative tool descriptors onto external script
// invocations.
//
// Invariants:
// - Tool names are unique and descriptors never change after registration.
// - Arguments are schema-validated before the executor is called.
// - Positional arguments follow declared parameter order; a parameter gated
//   by IncludeIf is dropped when its gate was not placed. Omittable
//   parameters after the first are each gated on the one before them.
// - Executor output is returned unchanged, and executor failures surface as
//   *ExecutionError with the original diagnostic.
//
// Usage:
//
//	reg := tool.NewRegistry()
//	_ = reg.Register(tool.Descriptor{
//		Name:        "echo",
//		Description: "Echo input",
//		Script:      "echo.ts",
//		Parameters:  []tool.Parameter{{Name: "text", Kind: tool.KindString, Required: true}},
//	})
//	d := tool.NewDispatcher(reg, runner)
//	res, err := d.Dispatch(ctx, walletID, tool.Request{Tool: "echo", Arguments: map[string]interface{}{"text": "hi"}})
package tool
