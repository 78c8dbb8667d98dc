// Package scheduler drives the collection cycle of one data source.
//
// Loop.Run performs one collect-then-forward pass, then sleeps for
// max(0, interval - elapsed) so passes keep a fixed wall-clock cadence. Any
// error or panic raised during a pass is logged and isolated to that pass.
// Passes of one Loop never overlap.
//
// Each pass yields a CycleReport that is handed to the registered Observers
// (self-metrics, status store). The now and after fields are injectable so
// tests control time without sleeping.
package scheduler
