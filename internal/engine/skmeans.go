package engine

// Spherical k-means runs the flat Lloyd loop with three differences:
//   - workers normalise their local rows to unit length during ALLOC
//     (see Worker.alloc), so zero rows stay zero and sit at cosine
//     distance 1 from every centroid;
//   - the comparator is always cosine distance;
//   - the centroid table renormalises every committed mean.
//
// Seeds come from the normalised local rows, so forgy and kmeans++ start
// on the unit sphere as well.

// newSpherical returns the spherical variant of the flat algorithm.
func newSpherical(k, dim int) *flat {
	return newFlat(k, dim, true)
}
