// Package particles owns the particle population of a bounce simulation.
//
// A Store keeps the initial population in host arrays and a device-resident
// mirror of each array. Step dispatches the integration kernel over every
// particle and blocks until the device is done; the Snapshot methods copy
// device data back into fresh slices.
//
// # Failures
//
// Any device error during Step or a snapshot leaves the device buffers in an
// unspecified state. The store records the cause and every later call
// returns ErrStoreFailed wrapping it. Recovery means building a new Store.
package particles
