// Package report stores finished executions: one summary row per
// submitted request plus one row per unit, including the failed node
// and terminal message.
//
// The engine feeds this package through its ReportSink interface when
// an execution retires; nothing here formats or delivers results.
package report
