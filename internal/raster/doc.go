// Package raster implements the pure, nodata-aware elementwise operators
// used to prepare optimization inputs: thresholding a value raster into a
// binary mask, dividing a raster by a scalar total, and summing a stack of
// aligned rasters. Operators work on in-memory grids; Calculate applies an
// operator block-wise over whole rasters, SumRaster reduces a raster to a
// scalar, and Convolver provides in-process 2-D convolution.
package raster
