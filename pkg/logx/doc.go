// Package logx configures schedbot's structured logging.
//
// It wraps zerolog in a small value type (logx.Logger) so that:
//   - Console output stays readable (short timestamp + short caller)
//   - File output stays JSON-structured
//   - An optional operator chat sink receives WARN+ lines, rate limited
//
// The zero Logger is a safe no-op, so components can accept one by value.
package logx
