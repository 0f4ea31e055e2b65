// Package output renders talorix-cli results as a table, JSON or YAML.
//
// List commands pass slices of view structs; the table formatter takes
// column names from their json tags and hides fields tagged table:"wide"
// unless wide output was requested.
package output
