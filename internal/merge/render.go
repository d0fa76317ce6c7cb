package merge

import (
	"bytes"
	"fmt"
	"html/template"
)

var transcriptTemplate = template.Must(template.New("transcript").Funcs(template.FuncMap{
	"timestamp": Timestamp,
}).Parse(`{{range .}}<p data-speaker="{{.Speaker}}" data-start-ms="{{.StartMs}}"><strong>[{{timestamp .StartMs}}] {{.Speaker}}:</strong> {{.Text}}</p>
{{end}}`))

// RenderHTML renders one paragraph per block. Output is byte-identical for
// identical blocks.
func RenderHTML(blocks []Block) (string, error) {
	var b bytes.Buffer
	if err := transcriptTemplate.Execute(&b, blocks); err != nil {
		return "", fmt.Errorf("rendering transcript html: %w", err)
	}
	return b.String(), nil
}

// Timestamp formats milliseconds as mm:ss, or hh:mm:ss past the hour.
func Timestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	h, m, sec := s/3600, (s/60)%60, s%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
