/*
Package index implements the tabular row index of a block grid and the codec
that packs each (x, y, z[, dx, dy, dz]) key into one ordered int64.

The native ravel order is C order: x varies slowest and z fastest, which is the
order attribute arrays are persisted in.  F order (z slowest, x fastest) exists
only for display and must be requested explicitly.
*/
package index
