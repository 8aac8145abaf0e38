package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2 style="color: #2e7d32;">{{.Organization}}</h2>
{{template "content" .}}
<hr><p style="font-size: 12px; color: #888;">{{.Organization}} · <a href="{{.FrontendURL}}">{{.FrontendURL}}</a></p>
</body></html>{{end}}`

var contents = map[string]string{
	"welcome": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Gracias por registrarte. Desde ahora puedes donar, seguir campañas y acumular puntos.</p>
{{end}}`,

	"donation_confirmation": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Hemos recibido tu donación de <strong>{{.Body.Amount}}</strong>{{if .Body.Campaign}} para la campaña <strong>{{.Body.Campaign}}</strong>{{end}}.</p>
{{if .Body.Points}}<p>Has ganado {{.Body.Points}} puntos.</p>{{end}}
<p>Referencia: {{.Body.Reference}}</p>
{{end}}`,

	"password_reset": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Recibimos una solicitud para restablecer tu contraseña. El enlace expira en {{.Body.ExpiresIn}}.</p>
<p><a href="{{.Body.Link}}">Restablecer contraseña</a></p>
<p>Si no solicitaste el cambio, ignora este mensaje.</p>
{{end}}`,

	"subscription_reminder": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Te recordamos que el {{.Body.Date}} se realizará el cargo de tu donación {{.Body.Frequency}} de <strong>{{.Body.Amount}}</strong>{{if .Body.Campaign}} para {{.Body.Campaign}}{{end}}.</p>
{{end}}`,

	"monthly_summary": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Este es el resumen de tus donaciones de {{.Body.Period}}:</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Fecha</th><th>Campaña</th><th>Monto</th></tr>
{{range .Body.Lines}}<tr><td>{{.Date}}</td><td>{{.Campaign}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{.Body.Total}}</strong></p>
{{end}}`,

	"campaign_update": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>Hay novedades en la campaña <strong>{{.Body.Campaign}}</strong>:</p>
<h3>{{.Body.Title}}</h3>
<p>{{.Body.Message}}</p>
{{end}}`,

	"receipt_delivery": `{{define "content"}}
<p>Adjuntamos el comprobante <strong>{{.Body.Code}}</strong> de tu donación de {{.Body.Amount}}.</p>
{{end}}`,

	"invoice_delivery": `{{define "content"}}
<p>Adjuntamos la factura <strong>{{.Body.Number}}</strong> por un total de {{.Body.Total}}.</p>
{{end}}`,

	"reward_assigned": `{{define "content"}}
<p>Hola {{.Body.Name}},</p>
<p>¡Felicidades! Obtuviste la recompensa <strong>{{.Body.Reward}}</strong>.</p>
<p>Tu código de canje es <strong>{{.Body.Code}}</strong>.</p>
{{end}}`,
}

var templates = parseTemplates()

func parseTemplates() map[string]*template.Template {
	out := make(map[string]*template.Template, len(contents))
	for name, content := range contents {
		t := template.Must(template.New(name).Parse(layout))
		out[name] = template.Must(t.Parse(content))
	}
	return out
}

func render(name string, data any) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("mail: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}
