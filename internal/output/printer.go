package output

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/pipeline"
)

// ResultWriter defines how search results are presented or delivered.
type ResultWriter interface {
	WriteResult(res pipeline.Result) error
}

// ConsolePrinter writes the ranking as a table.
type ConsolePrinter struct {
	out io.Writer
}

// NewConsolePrinter writes to w, or stdout when w is nil.
func NewConsolePrinter(w io.Writer) *ConsolePrinter {
	if w == nil {
		w = os.Stdout
	}
	return &ConsolePrinter{out: w}
}

func (cp *ConsolePrinter) WriteResult(res pipeline.Result) error {
	for _, notice := range Notices(res) {
		fmt.Fprintln(cp.out, "Aviso: "+notice)
	}

	if len(res.Results) == 0 {
		fmt.Fprintln(cp.out, "Nenhum disco encontrado.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cp.out)
	t.AppendHeader(table.Row{"#", "Fonte", "Disco", "Preço", "Condição", "Capa", "Link"})
	for i, l := range res.Results {
		t.AppendRow(table.Row{i + 1, l.Source, l.Name, FormatPrice(l, res.Currency), l.Condition, deref(l.SleeveCondition), l.Link})
	}
	t.Render()
	return nil
}

// Notices lists the requested sources that failed during the search.
func Notices(res pipeline.Result) []string {
	var out []string
	if !res.DiscogsSuccess && !res.WasSkipped("discogs") {
		out = append(out, "Discogs indisponível nesta busca, resultados podem estar incompletos.")
	}
	if !res.BandcampSuccess && !res.WasSkipped("bandcamp") {
		out = append(out, "Bandcamp indisponível nesta busca, resultados podem estar incompletos.")
	}
	return out
}

// FormatPrice renders a listing price with two decimals and the currency.
func FormatPrice(l model.Listing, currency string) string {
	return fmt.Sprintf("%s %s", l.Price.StringFixed(2), currency)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
