package thumbnail

import (
	"encoding/binary"
	"image"
)

// readJPEGOrientation scans a JPEG byte stream for an Exif APP1 segment and
// returns its Orientation tag (1-8, per the TIFF/Exif spec), or 1 (no
// transform) if the marker, the tag, or a well-formed TIFF header is
// absent. The standard library has no Exif parser, so this walks the JPEG
// marker segments and the TIFF IFD0 directory by hand rather than pulling
// in a dedicated Exif library.
func readJPEGOrientation(data []byte) int {
	const defaultOrientation = 1
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return defaultOrientation
	}

	offset := 2
	for offset+4 <= len(data) {
		if data[offset] != 0xFF {
			return defaultOrientation
		}
		marker := data[offset+1]
		if marker == 0xD8 || marker == 0xD9 || (marker >= 0xD0 && marker <= 0xD7) {
			offset += 2
			continue
		}
		if marker == 0xDA {
			// Start of scan: no more markers precede the compressed data.
			return defaultOrientation
		}
		segmentLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		segmentStart := offset + 4
		segmentEnd := offset + 2 + segmentLength
		if segmentEnd > len(data) || segmentLength < 2 {
			return defaultOrientation
		}

		if marker == 0xE1 && segmentEnd-segmentStart >= 6 && string(data[segmentStart:segmentStart+6]) == "Exif\x00\x00" {
			if o := orientationFromTIFF(data[segmentStart+6 : segmentEnd]); o != 0 {
				return o
			}
			return defaultOrientation
		}

		offset = segmentEnd
	}
	return defaultOrientation
}

// orientationFromTIFF reads the Orientation tag (0x0112) out of a TIFF
// header's IFD0, returning 0 if the header is malformed or the tag is
// absent.
func orientationFromTIFF(tiff []byte) int {
	if len(tiff) < 8 {
		return 0
	}

	var order binary.ByteOrder
	switch string(tiff[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0
	}
	if order.Uint16(tiff[2:4]) != 0x002A {
		return 0
	}

	ifdOffset := int(order.Uint32(tiff[4:8]))
	if ifdOffset+2 > len(tiff) {
		return 0
	}
	entryCount := int(order.Uint16(tiff[ifdOffset : ifdOffset+2]))

	const entrySize = 12
	base := ifdOffset + 2
	for i := 0; i < entryCount; i++ {
		entryStart := base + i*entrySize
		if entryStart+entrySize > len(tiff) {
			break
		}
		tag := order.Uint16(tiff[entryStart : entryStart+2])
		if tag != 0x0112 {
			continue
		}
		valueType := order.Uint16(tiff[entryStart+2 : entryStart+4])
		// Orientation is always a SHORT (type 3), stored in the first two
		// bytes of the 4-byte value field.
		if valueType != 3 {
			return 0
		}
		return int(order.Uint16(tiff[entryStart+8 : entryStart+10]))
	}
	return 0
}

// flipHorizontal mirrors src left-to-right.
func flipHorizontal(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, y, src.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// flipVertical mirrors src top-to-bottom.
func flipVertical(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, h-1-y, src.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// rotate90CW rotates src a quarter turn clockwise, swapping width and
// height.
func rotate90CW(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// rotate90CCW rotates src a quarter turn counter-clockwise, swapping width
// and height.
func rotate90CCW(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, src.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// applyOrientation transforms src so its pixels are stored upright,
// undoing whatever rotation/flip the camera recorded in the Exif
// Orientation tag rather than baking into the file itself. Orientation 1
// (or any value outside the defined 1-8 range) is a no-op. The mapping
// follows the standard Exif orientation table (TIFF tag 0x0112).
func applyOrientation(src image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return flipHorizontal(src)
	case 3:
		return flipVertical(flipHorizontal(src))
	case 4:
		return flipVertical(src)
	case 5:
		return rotate90CCW(flipHorizontal(src))
	case 6:
		return rotate90CW(src)
	case 7:
		return rotate90CW(flipHorizontal(src))
	case 8:
		return rotate90CCW(src)
	default:
		return src
	}
}
