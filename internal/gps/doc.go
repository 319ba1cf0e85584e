// Package gps runs the GNSS/INS sensor service.
//
// A Service opens a byte source (serial port, TCP stream or the built-in
// simulator), feeds each chunk into a fresh frame parser per connection, and
// keeps the latest navigation records for status and downstream consumers.
package gps
