// Package pointers builds the optional fields of course documents.
package pointers

func String(v string) *string { return &v }

func Float64(v float64) *float64 { return &v }
