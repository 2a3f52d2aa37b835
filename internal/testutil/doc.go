// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing threads, scripted sessions and
// lifecycle event recorders. They are not intended for production usage.
package testutil
