package report

import (
	"fmt"
	"html/template"
	"io"
)

// Word opens HTML saved with the office namespaces as a native document.
var docTemplate = template.Must(template.New("doc").Parse(`<html xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:w="urn:schemas-microsoft-com:office:word" xmlns="http://www.w3.org/TR/REC-html40">
<head>
<meta charset="utf-8">
<title>{{.Report.Title}}</title>
<style>
body { font-family: "Noto Sans", Calibri, sans-serif; font-size: 11pt; }
h1 { font-size: 18pt; }
.score { font-size: 14pt; font-weight: bold; }
.correct { color: #16803d; }
.wrong { color: #b91c1c; }
.explanation { color: #3c3c3c; }
</style>
</head>
<body>
<h1>{{.Report.Title}}</h1>
<p>{{.Report.Language}} | {{.Report.Difficulty}} | {{.Report.FinishedAt.Format "2 Jan 2006 15:04"}}</p>
<p class="score">{{.Report.ScoreLine}} {{.Report.Message}}</p>
<p>Correct: {{.Report.Score}} &nbsp; Incorrect: {{.Report.Incorrect}} &nbsp; Unanswered: {{.Report.Unanswered}}</p>
<hr>
{{range .Items}}
<h3>{{.Number}}. {{.Text}}</h3>
<ol type="A">{{range .Options}}<li>{{.}}</li>{{end}}</ol>
{{if .Image}}<p><img src="{{.Image}}" width="360" alt="Illustration for question {{.Number}}"></p>{{end}}
<p class="correct">Correct answer: {{.CorrectAnswer}}</p>
<p class="{{if .Correct}}correct{{else}}wrong{{end}}">Your answer: {{.ChosenAnswer}}</p>
{{if .Explanation}}<p class="explanation">Explanation: {{.Explanation}}</p>{{end}}
{{if .SourceExam}}<p class="explanation">Source: {{.SourceExam}} {{.SourceYear}}</p>{{end}}
{{end}}
</body>
</html>
`))

type docItem struct {
	Item
	Image template.URL
}

// WriteDoc renders r as a Word-compatible HTML document.
func (e Exporter) WriteDoc(w io.Writer, r Report) error {
	items := make([]docItem, 0, len(r.Items))
	for _, it := range r.Items {
		di := docItem{Item: it}
		_, ok, err := e.itemImage(it)
		if err != nil {
			return err
		}
		if ok {
			di.Image = template.URL(it.Image) // decoded by itemImage
		}
		items = append(items, di)
	}

	data := struct {
		Report Report
		Items  []docItem
	}{Report: r, Items: items}

	if err := docTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("%w: write doc: %w", ErrExport, err)
	}
	return nil
}
