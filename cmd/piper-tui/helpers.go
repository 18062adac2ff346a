package main

import (
	"math"
	"strings"
	"unicode"
)

func panelInnerWidth(total int) int {
	// Account for rounded border (2 cols) + horizontal padding (2 cols).
	return max(8, total-4)
}

func progressBar(ratio float64, w int) string {
	if w < 10 {
		w = 10
	}
	done := int(math.Round(clamp01(ratio) * float64(w)))
	done = max(0, min(w, done))
	return strings.Repeat("#", done) + strings.Repeat("-", w-done)
}

func pathOrDash(p string) string {
	if strings.TrimSpace(p) == "" {
		return "-"
	}
	return p
}

func nz(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func fitHeight(s string, h int) string {
	if h <= 0 {
		return s
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func wrapText(s string, width int) []string {
	if width <= 1 {
		return []string{s}
	}
	paras := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(paras)*2)
	for _, p := range paras {
		words := strings.FieldsFunc(p, unicode.IsSpace)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := ""
		for _, w := range words {
			rs := []rune(w)
			for len(rs) > width {
				if cur != "" {
					out = append(out, cur)
					cur = ""
				}
				out = append(out, string(rs[:width]))
				rs = rs[width:]
			}
			w = string(rs)
			switch {
			case cur == "":
				cur = w
			case len([]rune(cur))+1+len(rs) <= width:
				cur += " " + w
			default:
				out = append(out, cur)
				cur = w
			}
		}
		out = append(out, cur)
	}
	return out
}

func truncateWithEllipsis(s string, maxRunes int) string {
	if maxRunes < 4 {
		maxRunes = 4
	}
	rs := []rune(s)
	if len(rs) <= maxRunes {
		return s
	}
	return string(rs[:maxRunes-1]) + "…"
}

func appendSeries(series []float64, v float64, capN int) []float64 {
	series = append(series, v)
	if len(series) > capN {
		series = series[len(series)-capN:]
	}
	return series
}

func sparkline(series []float64, width int) string {
	if width < 4 {
		width = 4
	}
	if len(series) == 0 {
		return strings.Repeat(".", width)
	}
	sampled := series
	if len(series) > width {
		sampled = make([]float64, 0, width)
		step := float64(len(series)-1) / float64(width-1)
		for i := 0; i < width; i++ {
			idx := max(0, min(len(series)-1, int(math.Round(float64(i)*step))))
			sampled = append(sampled, series[idx])
		}
	}
	minV, maxV := sampled[0], sampled[0]
	for _, v := range sampled[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	chars := []rune("▁▂▃▄▅▆▇█")
	if maxV == minV {
		return strings.Repeat(string(chars[len(chars)-2]), len(sampled))
	}
	var b strings.Builder
	for _, v := range sampled {
		pos := int(math.Round((v - minV) / (maxV - minV) * float64(len(chars)-1)))
		b.WriteRune(chars[max(0, min(len(chars)-1, pos))])
	}
	return b.String()
}
