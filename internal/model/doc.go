// Package model defines domain data structures used across the app: opaque
// platform identifiers, catalog entries, status enums, and the progress
// events emitted toward the presentation layer. Identifiers are parsed once
// at the CLI boundary and passed as typed values everywhere else.
package model
