// Package color implements the colorimetry conversions shared by the state
// model and the entertainment engine: CIE xy, HSV, color temperature and
// brightness scaling. All functions are pure.
package color

import "math"

// XY is a point in the CIE 1931 color space.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClampRGB clamps each channel to the 0..255 range and truncates to int.
func ClampRGB(r, g, b float64) (int, int, int) {
	clamp := func(v float64) int {
		c := int(v)
		if c < 0 {
			return 0
		}
		if c > 255 {
			return 255
		}
		return c
	}
	return clamp(r), clamp(g), clamp(b)
}

// RGBBrightness scales an RGB triple by a 0..254 brightness value.
func RGBBrightness(r, g, b, bri int) (int, int, int) {
	scale := func(c int) float64 {
		return float64((c * bri) >> 8)
	}
	return ClampRGB(scale(r), scale(g), scale(b))
}

// RGBToXY converts an RGB triple to a CIE xy point using the Wide RGB D65
// conversion matrix. Inputs may be 0..1 or 0..255; the normalization by the
// tristimulus sum cancels the scale.
func RGBToXY(red, green, blue float64) XY {
	gamma := func(v float64) float64 {
		if v > 0.04045 {
			return math.Pow((v+0.055)/1.055, 2.4)
		}
		return v / 12.92
	}
	r, g, b := gamma(red), gamma(green), gamma(blue)

	x := r*0.664511 + g*0.154324 + b*0.162028
	y := r*0.283881 + g*0.668433 + b*0.047685
	z := r*0.000088 + g*0.072310 + b*0.986039

	div := x + y + z
	if div < 0.000001 {
		return XY{}
	}
	return XY{X: x / div, Y: y / div}
}

// XYToRGB converts a CIE xy point plus a 0..255 brightness into an RGB
// triple.
func XYToRGB(x, y float64, bri int) (int, int, int) {
	cx, cy, cz := x, y, 1.0-x-y

	r := cx*3.2406 - cy*1.5372 - cz*0.4986
	g := -cx*0.9689 + cy*1.8758 + cz*0.0415
	b := cx*0.0557 - cy*0.2040 + cz*1.0570

	gamma := func(v float64) float64 {
		if v <= 0.0031308 {
			return 12.92 * v
		}
		return 1.055*math.Pow(v, 1.0/2.4) - 0.055
	}
	r, g, b = gamma(r), gamma(g), gamma(b)

	if max := math.Max(r, math.Max(g, b)); max > 1 {
		r, g, b = r/max, g/max, b/max
	}
	r, g, b = math.Max(0, r), math.Max(0, g), math.Max(0, b)

	return ClampRGB(r*float64(bri), g*float64(bri), b*float64(bri))
}

// HSVToRGB converts Hue HSV coordinates (hue 0..65535, sat and value 0..254)
// to an RGB triple.
func HSVToRGB(h, s, v int) (int, int, int) {
	sf := float64(s) / 254
	vf := float64(v) / 254
	c := vf * sf
	x := c * (1 - math.Abs(math.Mod(float64(h)/11850, 2)-1))
	m := vf - c

	var r, g, b float64
	switch {
	case h < 10992:
		r, g, b = c, x, 0
	case h < 21845:
		r, g, b = x, c, 0
	case h < 32837:
		r, g, b = 0, c, x
	case h < 43830:
		r, g, b = 0, x, c
	case h < 54813:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return ClampRGB((r+m)*255, (g+m)*255, (b+m)*255)
}

// KelvinToRGB approximates the RGB rendering of a black-body color
// temperature in Kelvin (Tanner Helland curve fit, valid ~1000..40000K).
func KelvinToRGB(kelvin int) (int, int, int) {
	t := float64(kelvin) / 100.0
	var r, g, b float64

	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
		if t <= 19 {
			b = 0
		} else {
			b = 138.5177312231*math.Log(t-10) - 305.0447927307
		}
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
		b = 255
	}

	return ClampRGB(r, g, b)
}

// MirekToRGB converts a color temperature in mired (the unit used by the
// light state model, 153..500) to an RGB triple.
func MirekToRGB(mirek int) (int, int, int) {
	if mirek <= 0 {
		mirek = 153
	}
	return KelvinToRGB(1000000 / mirek)
}
