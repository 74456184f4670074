package email

import "html/template"

var templates = template.Must(template.New("emails").Parse(`
{{define "verification"}}<p>Hola {{.Nombre}},</p>
<p>Gracias por registrarte en Clínica Online. Confirmá tu email entrando a
<a href="{{.Link}}">{{.Link}}</a>.</p>
<p>Si no creaste esta cuenta podés ignorar este mensaje.</p>{{end}}

{{define "turno_status"}}<p>Hola {{.Destinatario}},</p>
<p>Tu turno del {{.Fecha}} con {{.Contraparte}} ahora está <strong>{{.Estado}}</strong>.</p>
{{if .Comentario}}<p>Comentario: {{.Comentario}}</p>{{end}}
<p><a href="{{.Link}}">Ver mis turnos</a></p>{{end}}

{{define "turno_nuevo"}}<p>Hola {{.Destinatario}},</p>
<p>{{.Contraparte}} solicitó un turno para el {{.Fecha}}.</p>
<p><a href="{{.Link}}">Revisar solicitudes</a></p>{{end}}
`))
