package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

const (
	pdfFont      = "body"
	pdfLineH     = 6.0
	pdfImageW    = 90.0
	pdfImageMaxH = 70.0
)

// WritePDF renders r as an A4 PDF.
func (e Exporter) WritePDF(w io.Writer, r Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(r.Title(), true)
	pdf.SetCreator("dsc-prep", true)

	family, tr := "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
	if e.FontPath == "" {
		if err := checkCoreFontText(r); err != nil {
			return err
		}
	} else {
		pdf.AddUTF8Font(pdfFont, "", e.FontPath)
		pdf.AddUTF8Font(pdfFont, "B", e.FontPath)
		family, tr = pdfFont, func(s string) string { return s }
	}
	if pdf.Err() {
		return fmt.Errorf("%w: load font: %w", ErrExport, pdf.Error())
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(family, "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.MultiCell(0, 8, tr(r.Title()), "", "L", false)
	pdf.SetFont(family, "", 11)
	pdf.MultiCell(0, pdfLineH, tr(fmt.Sprintf("%s | %s | %s", r.Language, r.Difficulty, r.FinishedAt.Format("2 Jan 2006 15:04"))), "", "L", false)
	pdf.Ln(2)
	pdf.SetFont(family, "B", 13)
	pdf.MultiCell(0, 7, tr(r.ScoreLine()+"  "+r.Message), "", "L", false)
	pdf.SetFont(family, "", 11)
	pdf.MultiCell(0, pdfLineH, tr(fmt.Sprintf("Correct: %d   Incorrect: %d   Unanswered: %d", r.Score, r.Incorrect, r.Unanswered)), "", "L", false)
	pdf.Ln(4)

	for _, it := range r.Items {
		pdf.SetFont(family, "B", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, pdfLineH, tr(fmt.Sprintf("%d. %s", it.Number, it.Text)), "", "L", false)

		pdf.SetFont(family, "", 10)
		for i, opt := range it.Options {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("   %c) %s", 'A'+i, opt)), "", "L", false)
		}

		im, ok, err := e.itemImage(it)
		if err != nil {
			return err
		}
		if ok {
			if err := addPDFImage(pdf, it.Number, im); err != nil {
				return err
			}
		}

		pdf.SetTextColor(22, 128, 61)
		pdf.MultiCell(0, pdfLineH, tr("Correct answer: "+it.CorrectAnswer), "", "L", false)
		if it.Correct {
			pdf.SetTextColor(22, 128, 61)
		} else {
			pdf.SetTextColor(185, 28, 28)
		}
		pdf.MultiCell(0, pdfLineH, tr("Your answer: "+it.ChosenAnswer), "", "L", false)
		pdf.SetTextColor(60, 60, 60)
		if it.Explanation != "" {
			pdf.MultiCell(0, 5, tr("Explanation: "+it.Explanation), "", "L", false)
		}
		if it.SourceExam != "" {
			pdf.MultiCell(0, 5, tr(strings.TrimSpace("Source: "+it.SourceExam+" "+it.SourceYear)), "", "L", false)
		}
		pdf.Ln(4)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: write pdf: %w", ErrExport, err)
	}
	return nil
}

func addPDFImage(pdf *fpdf.Fpdf, number int, im image) error {
	imageType := strings.ToUpper(strings.TrimPrefix(im.ext(), "."))
	name := fmt.Sprintf("q%d", number)
	opts := fpdf.ImageOptions{ImageType: imageType}

	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(im.data))
	if pdf.Err() || info == nil {
		return fmt.Errorf("%w: question %d image: %w", ErrExport, number, pdf.Error())
	}

	w, h := pdfImageW, pdfImageW*info.Height()/info.Width()
	if h > pdfImageMaxH {
		w, h = pdfImageMaxH*info.Width()/info.Height(), pdfImageMaxH
	}
	pdf.ImageOptions(name, pdf.GetX(), pdf.GetY()+1, w, h, true, opts, 0, "")
	pdf.Ln(2)
	return nil
}

// checkCoreFontText rejects reports the built-in Helvetica cannot print.
// The core fonts only cover Windows-1252; anything else would come out as
// dots, so Indic and Urdu text needs DSC_EXPORT_FONT_PATH.
func checkCoreFontText(r Report) error {
	texts := []string{r.Title(), r.Message}
	for _, it := range r.Items {
		texts = append(texts, it.Text, it.CorrectAnswer, it.ChosenAnswer, it.Explanation, it.SourceExam, it.SourceYear)
		texts = append(texts, it.Options...)
	}
	for _, text := range texts {
		for _, c := range text {
			if _, ok := charmap.Windows1252.EncodeRune(c); !ok {
				return fmt.Errorf("%w: %s text needs a Unicode font (set DSC_EXPORT_FONT_PATH): %q", ErrExport, r.Language, c)
			}
		}
	}
	return nil
}
