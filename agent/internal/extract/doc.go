// Package extract normalizes raw data-source payloads into flat metrics.
//
// The adapter tags each payload with its Shape: a flat field map, a nested
// wrapper/application/metric tree, or an array of timestamped samples.
// Extract dispatches on that tag; it never guesses the shape.
//
// Only JSON numbers become metrics. Booleans, strings, unknown application
// or metric identifiers and tree levels that are not objects are reported as
// Skip values in the Result rather than as errors. Only a payload whose root
// does not match the shape is an error.
//
// DeviceName builds the dotted prefix of a tree payload from a device
// identifier, splitting the packed district/street segment by position.
package extract
