package scalespace

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// lineFilter convolves lines of one fixed length with a symmetric kernel through the
// FFT. Lines are zero padded to length+2*radius so the circular convolution never wraps
// one end of a line onto the other.
type lineFilter struct {
	length int
	fft    *fourier.FFT
	kernel []complex128 // spectrum of the centred kernel
	norm   []float64    // kernel mass falling inside the line, per output sample

	buf   []float64
	coeff []complex128
	out   []float64
}

// newLineFilter prepares the spectrum of kernel for lines of the given length.
//
// Parameters:
//   - kernel: Odd-length, normalised kernel centred on its middle sample
//   - length: Number of samples of every line to be filtered
//
// Returns:
//   - A filter reusable for any number of lines of that length
func newLineFilter(kernel []float64, length int) *lineFilter {
	radius := len(kernel) / 2
	n := length + 2*radius
	f := &lineFilter{
		length: length,
		fft:    fourier.NewFFT(n),
		buf:    make([]float64, n),
		coeff:  make([]complex128, n/2+1),
		out:    make([]float64, n),
	}

	// Centre the kernel on sample 0, negative taps wrapping to the end.
	centred := make([]float64, n)
	for k, w := range kernel {
		centred[(k-radius+n)%n] = w
	}
	f.kernel = f.fft.Coefficients(nil, centred)

	// Normalised convolution: samples near the ends only see part of the kernel.
	ones := make([]float64, length)
	for i := range ones {
		ones[i] = 1
	}
	f.norm = f.convolve(nil, ones)
	return f
}

// apply filters src into dst, both of length f.length, and returns dst.
func (f *lineFilter) apply(dst, src []float64) []float64 {
	dst = f.convolve(dst, src)
	floats.Div(dst, f.norm)
	return dst
}

func (f *lineFilter) convolve(dst, src []float64) []float64 {
	if dst == nil {
		dst = make([]float64, f.length)
	}
	for i := range f.buf {
		f.buf[i] = 0
	}
	copy(f.buf, src)

	f.fft.Coefficients(f.coeff, f.buf)
	for i := range f.coeff {
		f.coeff[i] *= f.kernel[i]
	}
	f.fft.Sequence(f.out, f.coeff)

	// Sequence is unnormalised.
	scale := 1 / float64(len(f.buf))
	for i := 0; i < f.length; i++ {
		dst[i] = f.out[i] * scale
	}
	return dst
}
