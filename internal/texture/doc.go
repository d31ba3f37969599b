// Package texture holds the pixel-level building blocks of the compiler:
// linear float images, the raw byte formats the host hands over, the mip
// chain builder and the channel encodings applied when packing.
//
// Images are stored as interleaved float32 channels in row-major order.
// Nothing here touches the filesystem; callers decide where bytes come from.
package texture
