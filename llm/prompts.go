package llm

const meetingSummaryTemplate = `
{{if .Transcript}}Read this meeting transcript.{{else}}Listen to this meeting audio.{{end}}
{{- if .Meeting.ChannelName}}
The meeting took place in the voice channel "{{.Meeting.ChannelName}}"{{if .Meeting.Speakers}} with {{.Meeting.Speakers}} speaker(s){{end}} and lasted {{.Duration}}.
{{- end}}
Output ONLY a Markdown summary.
Structure:
## Meeting Agenda
(Infer the agenda based on the start of conversation)

## Key Insights
(Bullet points of the most important realizations)

## Action Items
(Checklist of tasks mentioning who is responsible)

## Detailed Summary
(A cohesive paragraph summarizing the flow)

Do NOT provide a transcript.
{{- if .Transcript}}

Transcript:
{{.Transcript}}
{{- end}}
`
