// Package engine is the test orchestration core: it turns execution
// requests into per-device work and drives scenario graphs on real
// handsets.
//
// # Architecture
//
//	           Submit(request)
//	                 │
//	          ┌──────▼───────┐   one request = repeatCount passes,
//	          │ Coordinator   │   scenarios sequential within a pass
//	          └──────┬───────┘
//	                 │ Enqueue (device × scenario units)
//	          ┌──────▼───────┐   per-device FIFO backlog,
//	          │    Queue      │   stable priority ordering,
//	          └──────┬───────┘   at most one running unit per device
//	                 │ TryAcquire / Release
//	          ┌──────▼───────┐
//	          │ LockRegistry  │   per-device critical sections
//	          └──────┬───────┘
//	                 │ dispatch
//	          ┌──────▼───────┐   closed node set, handler table,
//	          │    Runner     │   loop guard, branch fallback,
//	          └──────┬───────┘   global visit ceiling
//	                 │
//	           Device Driver (MQTT)
//
// Progress flows out through the Emitter interface: step events in
// node-visitation order per unit, one terminal event per unit, queue
// depth changes, and a summary when an execution retires.
//
// All in-flight state is volatile. A restart loses running and pending
// units by design; only finished executions reach the report sink.
package engine
