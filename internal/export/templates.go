package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}).Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Doc     Document
	Columns []TemplateColumn
}

// TemplateColumn is one board column with its groups and loose notes.
type TemplateColumn struct {
	Name   string
	Groups []TemplateGroup
	Notes  []Note
}

// TemplateGroup holds group data for template
type TemplateGroup struct {
	Title string
	Votes int
	Notes []string
}

var boardColumns = []string{"start", "stop", "continue", "mixed"}

func newTemplateData(doc Document) TemplateData {
	data := TemplateData{Doc: doc}
	for _, name := range boardColumns {
		col := TemplateColumn{Name: name, Notes: doc.NotesIn(name)}
		for _, g := range doc.GroupsIn(name) {
			tg := TemplateGroup{Title: g.Title, Votes: g.Votes}
			for _, id := range g.NoteIDs {
				tg.Notes = append(tg.Notes, doc.NoteText(id))
			}
			col.Groups = append(col.Groups, tg)
		}
		if len(col.Groups) == 0 && len(col.Notes) == 0 && name == "mixed" {
			continue
		}
		data.Columns = append(data.Columns, col)
	}
	return data
}

// RenderHTML renders the session summary page.
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, newTemplateData(doc)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Retrospective {{.Doc.SessionID}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 900px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .column { margin-bottom: 1.5rem; }
    .group { background: #f5f5f5; padding: 0.75rem 1rem; margin: 0.5rem 0; border-left: 3px solid #333; }
    .votes { color: #0066cc; font-size: 0.85em; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #ddd; padding: 0.4rem; text-align: left; }
  </style>
</head>
<body>
  <h1>Retrospective {{.Doc.SessionID}}</h1>
  <div class="meta">{{.Doc.Framework}} | {{.Doc.Facilitator}} | {{formatDate .Doc.Date "Jan 2, 2006"}}</div>

  <h2>Participants</h2>
  <ul>
  {{range .Doc.Participants}}<li>{{.Email}} ({{.Role}}){{if not .Joined}} - did not join{{end}}</li>
  {{end}}</ul>

  {{range .Columns}}
  <div class="column">
    <h2>{{title .Name}}</h2>
    {{range .Groups}}<div class="group">
      <strong>{{if .Title}}{{.Title}}{{else}}Untitled group{{end}}</strong> <span class="votes">{{.Votes}} votes</span>
      <ul>{{range .Notes}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{end}}
    <ul>{{range .Notes}}<li>{{.Text}}</li>{{end}}</ul>
  </div>
  {{end}}

  <h2>Action items</h2>
  {{if .Doc.ActionItems}}
  <table>
    <tr><th>Title</th><th>Assignee</th></tr>
    {{range .Doc.ActionItems}}<tr><td>{{.Title}}</td><td>{{.Assignee}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No action items.</p>{{end}}
</body>
</html>`
