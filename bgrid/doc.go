/*
Package bgrid holds the shared building blocks of the block-model engine:
levelled logging, the error taxonomy, float vectors for grid placement,
compression/checksum wrappers for persisted values, and generic configuration.

Packages that understand grids (geometry, index, attribute, blockmodel) and
packages that persist them (storage and its engines) all import bgrid, but
bgrid imports none of them.
*/
package bgrid
