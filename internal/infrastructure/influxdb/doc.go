// Package influxdb provides step-level test telemetry for the QA console core.
//
// The engine's progress events are mirrored here as time-series points so
// dashboards can chart step durations, unit pass rates, and per-device queue
// depth over time. All writes are non-blocking and batched by the underlying
// InfluxDB client; failures surface via the SetOnError callback, never as
// errors on the write path.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStepDuration("pixel-7-01", "login-flow", "action", 412.0)
//
// InfluxDB is optional: when disabled in config, Connect returns ErrDisabled
// and callers skip the wiring entirely.
package influxdb
