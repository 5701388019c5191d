// Package calibration converts raw sensor counts into force values. It
// contains:
//
//   - Point: one (force, raw count) pair from the calibration table
//   - Model: the loaded table plus the conversion methods
//   - LoadTable: reads the Force_N,V3_mean CSV the sensors are calibrated with
//
// A Model is immutable after construction. Conversion takes the session's
// current baseline on every call, so one read-only table can back any number
// of Models without cross-talk between device sessions.
package calibration
