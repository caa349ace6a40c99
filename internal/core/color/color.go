// Package color implements total, saturating conversions between the
// color representations integrations report in (spec.md §3, "Light").
package color

import "math"

// Mode identifies which fields of a Color are authoritative.
type Mode string

// Supported color modes.
const (
	ModeHs  Mode = "hs"  // hue (0-360) + saturation (0-1)
	ModeXy  Mode = "xy"  // CIE 1931 xy chromaticity
	ModeCt  Mode = "ct"  // color temperature, mireds
	ModeRgb Mode = "rgb" // 8-bit red/green/blue
)

// Color is a union of the supported representations. Only the fields
// relevant to Mode are meaningful; conversions populate all of them so
// that reading any field after a ToMode call is always valid.
type Color struct {
	Mode Mode

	Hue        float64 // 0-360
	Saturation float64 // 0-1

	X, Y float64 // 0-1

	Mireds float64 // color temperature

	R, G, B uint8
}

const (
	minMireds = 153.0 // ~6500K
	maxMireds = 500.0 // ~2000K
)

// clamp01 saturates v into [0, 1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ToMode converts c into the requested mode. Conversion is total: any
// input, even one produced by a prior lossy conversion, yields a valid
// value in the target mode (saturating out-of-range components rather
// than erroring).
func (c Color) ToMode(target Mode) Color {
	if c.Mode == target {
		return c
	}

	rgb := c.toRGB()
	switch target {
	case ModeRgb:
		rgb.Mode = ModeRgb
		return rgb
	case ModeHs:
		return rgbToHs(rgb)
	case ModeXy:
		return rgbToXy(rgb)
	case ModeCt:
		return rgbToCt(rgb)
	default:
		return rgb
	}
}

// toRGB normalizes any source mode to RGB as the common pivot.
func (c Color) toRGB() Color {
	switch c.Mode {
	case ModeRgb:
		return c
	case ModeHs:
		return hsToRGB(c)
	case ModeXy:
		return xyToRGB(c)
	case ModeCt:
		return ctToRGB(c)
	default:
		return Color{Mode: ModeRgb, R: 255, G: 255, B: 255}
	}
}

func hsToRGB(c Color) Color {
	h := math.Mod(c.Hue, 360)
	if h < 0 {
		h += 360
	}
	s := clamp01(c.Saturation)
	v := 1.0 // full value; brightness is tracked separately on Device.Light

	i := math.Floor(h / 60)
	f := h/60 - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return Color{Mode: ModeRgb, R: to8(r), G: to8(g), B: to8(b)}
}

func rgbToHs(c Color) Color {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}

	return Color{Mode: ModeHs, Hue: h, Saturation: clamp01(s)}
}

func xyToRGB(c Color) Color {
	x, y := clamp01(c.X), clamp01(c.Y)
	if y == 0 {
		y = 0.0001
	}
	capY := 1.0
	capX := (capY / y) * x
	capZ := (capY / y) * (1 - x - y)

	r := capX*3.2406 - capY*1.5372 - capZ*0.4986
	g := -capX*0.9689 + capY*1.8758 + capZ*0.0415
	b := capX*0.0557 - capY*0.2040 + capZ*1.0570

	gamma := func(v float64) float64 {
		if v <= 0.0031308 {
			return 12.92 * v
		}
		return 1.055*math.Pow(v, 1/2.4) - 0.055
	}

	return Color{Mode: ModeRgb, R: to8(gamma(r)), G: to8(gamma(g)), B: to8(gamma(b))}
}

func rgbToXy(c Color) Color {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255

	inv := func(v float64) float64 {
		if v > 0.04045 {
			return math.Pow((v+0.055)/1.055, 2.4)
		}
		return v / 12.92
	}
	r, g, b = inv(r), inv(g), inv(b)

	capX := r*0.4124 + g*0.3576 + b*0.1805
	capY := r*0.2126 + g*0.7152 + b*0.0722
	capZ := r*0.0193 + g*0.1192 + b*0.9505

	sum := capX + capY + capZ
	if sum == 0 {
		return Color{Mode: ModeXy, X: 0, Y: 0}
	}

	return Color{Mode: ModeXy, X: clamp01(capX / sum), Y: clamp01(capY / sum)}
}

func ctToRGB(c Color) Color {
	mireds := math.Max(minMireds, math.Min(maxMireds, c.Mireds))
	kelvin := 1_000_000 / mireds / 100

	var r, g, b float64
	if kelvin <= 66 {
		r = 255
	} else {
		r = 329.698727446 * math.Pow(kelvin-60, -0.1332047592)
	}

	if kelvin <= 66 {
		g = 99.4708025861*math.Log(kelvin) - 161.1195681661
	} else {
		g = 288.1221695283 * math.Pow(kelvin-60, -0.0755148492)
	}

	switch {
	case kelvin >= 66:
		b = 255
	case kelvin <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(kelvin-10) - 305.0447927307
	}

	return Color{Mode: ModeRgb, R: to8(r / 255), G: to8(g / 255), B: to8(b / 255)}
}

func rgbToCt(c Color) Color {
	// Approximate: nearest mireds for the dominant warm/cool balance of the RGB triple.
	r, b := float64(c.R), float64(c.B)
	if r+b == 0 {
		return Color{Mode: ModeCt, Mireds: (minMireds + maxMireds) / 2}
	}
	ratio := b / (r + b) // 0 = warm, 1 = cool
	mireds := maxMireds - ratio*(maxMireds-minMireds)
	return Color{Mode: ModeCt, Mireds: mireds}
}

func to8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
