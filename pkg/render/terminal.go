package render

import (
	"image"
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw paints the pixmap onto the screen with half-block cells, two pixmap
// rows per terminal row. Pixels under a zero mask value are left blank when
// mask is non-nil.
func (p *Pixmap) Draw(scr uv.Screen, area uv.Rectangle, mask *image.Gray) {
	// ▀ takes the top pixel as foreground and the bottom one as background.
	for row := area.Min.Y; row < area.Max.Y; row++ {
		topY := (row - area.Min.Y) * 2
		botY := topY + 1

		for col := area.Min.X; col < area.Max.X; col++ {
			x := col - area.Min.X
			if x >= p.Width {
				break
			}
			cell := &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: p.cellColor(x, topY, mask),
					Bg: p.cellColor(x, botY, mask),
				},
			}
			scr.SetCell(col, row, cell)
		}
	}
}

// cellColor returns the terminal color of a pixel, or nil for background.
func (p *Pixmap) cellColor(x, y int, mask *image.Gray) color.Color {
	if y >= p.Height {
		return nil
	}
	if mask != nil && mask.GrayAt(x, y).Y == 0 {
		return nil
	}
	c := p.GetPixel(x, y)
	if c.A == 0 {
		return nil
	}
	return color.RGBA{c.R, c.G, c.B, 255}
}
