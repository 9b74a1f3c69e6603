// Package gis defines the raster/vector data model shared across the
// pipeline and the contracts of the external geospatial collaborators:
// dataset access, 2-D convolution, multi-raster align/clip, the per-region
// optimization routine, and remote bundle fetching. The pipeline depends
// only on these interfaces. Default implementations live in
// internal/geotiff, internal/gpkg, internal/raster, and internal/align;
// in-memory fakes live in internal/testsupport.
package gis
