package pipeline

// Register the decoders for every supported library format so
// image.DecodeConfig and imaging.Open can read them. HEIC has no pure-Go
// decoder; HEIC files are still cataloged but pixel-dependent stages fail
// permanently for them.
import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)
