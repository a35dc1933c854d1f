// Package device manages the handset inventory for the QA console.
//
// A device row pairs a registered handset (name, platform, serial)
// with two pieces of runtime state: connection status reported by the
// on-host agent over MQTT, and a role that reserves the device either
// for test execution or for an author's live editing session.
//
// # Architecture
//
//	MQTT status topic ──► Registry.SetStatus ──┐
//	HTTP API CRUD     ──► Registry CRUD      ──┤──► cache (RWMutex)
//	Editing sessions  ──► Begin/EndSession   ──┘        │
//	                                              ┌─────▼──────┐
//	                                              │ Repository  │
//	                                              │  (SQLite)   │
//	                                              └────────────┘
//
// The engine never touches this package's persistence directly; it
// consumes ListConnected to expand execution requests and relies on
// its own lock registry for serialising access per device.
package device
