package testutil

// WithStandardImages creates a two-modality subject with masks:
// t1.mnc, t2.mnc, ref_t1.mnc, ref_t2.mnc, mask.mnc, ref_mask.mnc.
func (b *Builder) WithStandardImages() *Builder {
	return b.
		WithImage("t1.mnc").
		WithImage("t2.mnc").
		WithImage("ref_t1.mnc").
		WithImage("ref_t2.mnc").
		WithImage("mask.mnc").
		WithImage("ref_mask.mnc")
}

// WithStandardJobs adds one linear and one nonlinear job over the standard images.
func (b *Builder) WithStandardJobs() *Builder {
	return b.
		WithJob("lin",
			Mode("linear"), Source("t1.mnc"), Target("ref_t1.mnc"), Output("lin.xfm"),
			Masks("mask.mnc", "ref_mask.mnc")).
		WithJob("nl",
			Mode("nonlinear"), Source("t1.mnc", "t2.mnc"), Target("ref_t1.mnc", "ref_t2.mnc"),
			Output("nl.xfm"), Levels(8, 2),
			Param("cost_function", []string{"CC", "Mattes"}))
}
