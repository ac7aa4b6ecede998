package watermark

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfStampDescription — параметры штампа pdfcpu: серый полупрозрачный текст
// под углом 35°, масштаб относительно размера каждой страницы.
const pdfStampDescription = "fontname:Helvetica, points:24, rotation:35, opacity:0.14, " +
	"scalefactor:0.6 rel, fillcolor:#737373, position:c"

// watermarkPDF накладывает текстовый штамп на каждую страницу src и пишет результат в dst.
func watermarkPDF(src, dst, text string) error {
	wm, err := api.TextWatermark(text, pdfStampDescription, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("параметры штампа PDF: %w", err)
	}
	if err := api.AddWatermarksFile(src, dst, nil, wm, nil); err != nil {
		return fmt.Errorf("наложение штампа PDF: %w", err)
	}
	return nil
}
