package raster

import "sort"

// NormalizeOrientation returns the grid with rows ordered north to south and
// columns west to east. It runs before extent validation, which assumes
// north-first rows.
func NormalizeOrientation(g Grid) Grid {
	out := g.clone()
	if out.Rows() > 1 && out.Lat[0] < out.Lat[out.Rows()-1] {
		flipRows(&out)
	}
	if out.Cols() > 1 && out.Lon[0] > out.Lon[out.Cols()-1] {
		flipCols(&out)
	}
	return out
}

// ShiftLongitude converts a 0..360 longitude axis to -180..180 and reorders
// columns so longitudes stay ascending.
func ShiftLongitude(g Grid) Grid {
	needs := false
	for _, v := range g.Lon {
		if v > 180 {
			needs = true
			break
		}
	}
	if !needs {
		return g
	}

	out := g.clone()
	cols := out.Cols()
	order := make([]int, cols)
	for c := range order {
		order[c] = c
		if out.Lon[c] > 180 {
			out.Lon[c] -= 360
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return out.Lon[order[i]] < out.Lon[order[j]] })

	lon := make([]float64, cols)
	data := make([]float32, len(out.Data))
	for newC, oldC := range order {
		lon[newC] = out.Lon[oldC]
		for r := 0; r < out.Rows(); r++ {
			data[r*cols+newC] = out.Data[r*cols+oldC]
		}
	}
	out.Lon = lon
	out.Data = data
	return out
}

func flipRows(g *Grid) {
	rows, cols := g.Rows(), g.Cols()
	for i, j := 0, rows-1; i < j; i, j = i+1, j-1 {
		g.Lat[i], g.Lat[j] = g.Lat[j], g.Lat[i]
		for c := 0; c < cols; c++ {
			g.Data[i*cols+c], g.Data[j*cols+c] = g.Data[j*cols+c], g.Data[i*cols+c]
		}
	}
}

func flipCols(g *Grid) {
	rows, cols := g.Rows(), g.Cols()
	for i, j := 0, cols-1; i < j; i, j = i+1, j-1 {
		g.Lon[i], g.Lon[j] = g.Lon[j], g.Lon[i]
		for r := 0; r < rows; r++ {
			g.Data[r*cols+i], g.Data[r*cols+j] = g.Data[r*cols+j], g.Data[r*cols+i]
		}
	}
}
