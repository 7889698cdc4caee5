// Package aggregates holds the write-side primitives shared by target store
// repos: transaction boundaries, version guards, store hooks and the mapping
// of driver errors onto rollup error kinds.
package aggregates
