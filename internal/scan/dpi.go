package scan

import (
	"bytes"
	"encoding/binary"

	"github.com/rwcarlsen/goexif/exif"
)

// DefaultDPI is used when a file carries no resolution metadata
const DefaultDPI = 72

const metresPerInch = 0.0254

// probeDPI reads the resolution from the format header, falling back to EXIF.
// The larger of the two axes wins, truncated to an integer.
func probeDPI(data []byte, format string) int {
	var x, y float64
	switch format {
	case "jpeg":
		x, y = jfifDensity(data)
	case "png":
		x, y = pngPhys(data)
	case "bmp":
		x, y = bmpPelsPerMetre(data)
	}
	if x <= 0 && y <= 0 {
		x, y = exifResolution(data)
	}
	dpi := int(max(x, y))
	if dpi <= 0 {
		return DefaultDPI
	}
	return dpi
}

// jfifDensity parses the APP0 JFIF segment
func jfifDensity(data []byte) (float64, float64) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, 0
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return 0, 0
		}
		marker := data[pos+1]
		length := int(binary.BigEndian.Uint16(data[pos+2:]))
		seg := data[pos+4:]
		if length < 2 || len(seg) < length-2 {
			return 0, 0
		}
		seg = seg[:length-2]
		if marker == 0xE0 && len(seg) >= 12 && bytes.HasPrefix(seg, []byte("JFIF\x00")) {
			units := seg[7]
			xd := float64(binary.BigEndian.Uint16(seg[8:]))
			yd := float64(binary.BigEndian.Uint16(seg[10:]))
			switch units {
			case 1:
				return xd, yd
			case 2:
				return xd * 2.54, yd * 2.54
			}
			return 0, 0
		}
		// Start of scan: no more headers
		if marker == 0xDA {
			return 0, 0
		}
		pos += 2 + length
	}
	return 0, 0
}

// pngPhys parses the pHYs chunk
func pngPhys(data []byte) (float64, float64) {
	const sigLen = 8
	if len(data) < sigLen || !bytes.Equal(data[:sigLen], []byte("\x89PNG\r\n\x1a\n")) {
		return 0, 0
	}
	pos := sigLen
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		body := pos + 8
		if length < 0 || body+length > len(data) {
			return 0, 0
		}
		switch typ {
		case "pHYs":
			if length < 9 {
				return 0, 0
			}
			px := float64(binary.BigEndian.Uint32(data[body:]))
			py := float64(binary.BigEndian.Uint32(data[body+4:]))
			if data[body+8] != 1 {
				return 0, 0
			}
			return px * metresPerInch, py * metresPerInch
		case "IDAT", "IEND":
			return 0, 0
		}
		pos = body + length + 4 // crc
	}
	return 0, 0
}

// bmpPelsPerMetre reads the BITMAPINFOHEADER resolution fields
func bmpPelsPerMetre(data []byte) (float64, float64) {
	if len(data) < 46 || data[0] != 'B' || data[1] != 'M' {
		return 0, 0
	}
	if binary.LittleEndian.Uint32(data[14:]) < 40 {
		return 0, 0
	}
	px := float64(int32(binary.LittleEndian.Uint32(data[38:])))
	py := float64(int32(binary.LittleEndian.Uint32(data[42:])))
	return px * metresPerInch, py * metresPerInch
}

// exifResolution reads XResolution and YResolution. ResolutionUnit 3 means
// centimetres.
func exifResolution(data []byte) (float64, float64) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	rat := func(name exif.FieldName) float64 {
		tag, err := x.Get(name)
		if err != nil {
			return 0
		}
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	}
	xr, yr := rat(exif.XResolution), rat(exif.YResolution)
	if tag, err := x.Get(exif.ResolutionUnit); err == nil {
		if unit, err := tag.Int(0); err == nil && unit == 3 {
			xr, yr = xr*2.54, yr*2.54
		}
	}
	return xr, yr
}
