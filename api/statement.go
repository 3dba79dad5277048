/*
statement.go - HTML payout statement rendering

PURPOSE:
  Renders a self-contained HTML statement for one settlement, suitable
  for emailing to a creator or printing to PDF from the browser.
  ?download=1 forces a file download via Content-Disposition.

SEE ALSO:
  - server.go: GET /api/settlements/{id}/statement
*/
package api

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starworks/settlement-engine/settlement"
)

var statementTmpl = template.Must(template.New("statement").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Payout Statement {{.Period}} - {{.StarName}}</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 720px; margin: 40px auto; padding: 0 20px; color: #1a1a1a; }
  h1 { font-size: 1.4em; border-bottom: 2px solid #1a1a1a; padding-bottom: 8px; }
  table { width: 100%; border-collapse: collapse; margin: 24px 0; }
  th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #ddd; }
  th { background: #f5f5f5; }
  td.amount, th.amount { text-align: right; font-variant-numeric: tabular-nums; }
  tr.total td { font-weight: bold; border-top: 2px solid #1a1a1a; }
  .meta { color: #666; font-size: 0.9em; }
  .status { display: inline-block; padding: 2px 10px; border-radius: 10px; background: #eee; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Payout Statement</h1>
<p class="meta">
  Creator: <strong>{{.StarName}}</strong><br>
  Period: {{.Period}}<br>
  Status: <span class="status">{{.Status}}</span>{{if .PaymentDate}}<br>
  Payment date: {{.PaymentDate}}{{end}}
</p>
<table>
  <tr><th>Description</th><th>Type</th><th class="amount">Amount</th></tr>
  {{range .Items}}<tr>
    <td>{{.Description}}</td>
    <td>{{.ItemType}}</td>
    <td class="amount">{{.Amount}}{{if .Adjusted}} *{{end}}</td>
  </tr>
  {{end}}<tr class="total"><td colspan="2">Total</td><td class="amount">{{.Total}}</td></tr>
</table>
{{if .HasAdjusted}}<p class="meta">* manually adjusted amount</p>{{end}}
{{if .Note}}<p class="meta">Note: {{.Note}}</p>{{end}}
<p class="meta">Generated {{.GeneratedAt}}</p>
</body>
</html>`))

type statementItem struct {
	Description string
	ItemType    string
	Amount      string
	Adjusted    bool
}

type statementData struct {
	StarName    string
	Period      string
	Status      string
	PaymentDate string
	Note        string
	Items       []statementItem
	Total       string
	HasAdjusted bool
	GeneratedAt string
}

// GetStatement renders the HTML payout statement for a settlement.
// GET /api/settlements/{id}/statement?download=1
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", settlement.ErrSettlementNotFound.Error())
		return
	}

	data := statementData{
		StarName:    s.StarID,
		Period:      fmt.Sprintf("%04d-%02d", s.Year, s.Month),
		Status:      string(s.Status),
		Note:        s.Note,
		Total:       s.TotalAmount.StringFixed(2),
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04 UTC"),
	}
	if s.Star != nil {
		data.StarName = s.Star.Name
	}
	if s.PaymentDate != nil {
		data.PaymentDate = s.PaymentDate.UTC().Format("2006-01-02")
	}
	for _, item := range s.Items {
		adjusted := item.AdjustedAmount != nil
		data.Items = append(data.Items, statementItem{
			Description: item.Description,
			ItemType:    string(item.ItemType),
			Amount:      item.FinalAmount().StringFixed(2),
			Adjusted:    adjusted,
		})
		if adjusted {
			data.HasAdjusted = true
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") != "" {
		filename := fmt.Sprintf("statement-%s-%04d-%02d.html", s.StarID, s.Year, s.Month)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	statementTmpl.Execute(w, data)
}
