// Package platform contains filesystem glue shared by the download pipeline:
// output filename sanitation and directory helpers.
package platform
