package components

// Preview markup binds editable text with data-field. Lists and URLs carry no
// binding so edits to them go through a full re-render.
const builtinTemplates = `
{{define "preview:hero"}}<section class="mk-component mk-type-hero">
{{with text .Props "image_url"}}<img class="mk-headshot" src="{{.}}" alt="">{{end}}
<h1 data-field="title">{{text .Props "title"}}</h1>
<p class="mk-tagline" data-field="subtitle">{{text .Props "subtitle"}}</p>
</section>{{end}}

{{define "preview:biography"}}<section class="mk-component mk-type-biography">
<h2 data-field="name">{{text .Props "name"}}</h2>
<p class="mk-location" data-field="location">{{text .Props "location"}}</p>
<div class="mk-body" data-field="bio">{{text .Props "bio"}}</div>
</section>{{end}}

{{define "preview:topics"}}<section class="mk-component mk-type-topics">
<h2 data-field="heading">{{text .Props "heading"}}</h2>
<ul class="mk-list" data-list="topics">{{range items .Props "topics"}}<li>{{.}}</li>{{end}}</ul>
</section>{{end}}

{{define "preview:questions"}}<section class="mk-component mk-type-questions">
<h2 data-field="heading">{{text .Props "heading"}}</h2>
<ol class="mk-list" data-list="questions">{{range items .Props "questions"}}<li>{{.}}</li>{{end}}</ol>
</section>{{end}}

{{define "preview:video-intro"}}<section class="mk-component mk-type-video">
<h2 data-field="heading">{{text .Props "heading"}}</h2>
{{with text .Props "video_url"}}<div class="mk-video" data-src="{{.}}"></div>{{end}}
<p data-field="description">{{text .Props "description"}}</p>
</section>{{end}}

{{define "preview:guest-intro"}}<section class="mk-component mk-type-guest">
<h2 data-field="heading">{{text .Props "heading"}}</h2>
<div class="mk-body" data-field="intro">{{text .Props "intro"}}</div>
</section>{{end}}

{{define "preview:contact"}}<section class="mk-component mk-type-contact">
<p><span class="mk-label">Email</span> <span data-field="email">{{text .Props "email"}}</span></p>
<p><span class="mk-label">Phone</span> <span data-field="phone">{{text .Props "phone"}}</span></p>
<p><span class="mk-label">Website</span> <span data-field="website">{{text .Props "website"}}</span></p>
</section>{{end}}

{{define "preview:social"}}<section class="mk-component mk-type-social">
<ul class="mk-links">{{range .Fields}}<li><span class="mk-label">{{.Label}}</span> <span data-field="{{.Name}}">{{.Value}}</span></li>{{end}}</ul>
</section>{{end}}

{{define "preview:generic"}}<section class="mk-component mk-type-generic">
<dl>{{range .Fields}}<dt>{{.Label}}</dt>{{if .List}}<dd data-list="{{.Name}}">{{range .Items}}<span>{{.}}</span>{{end}}</dd>{{else}}<dd data-field="{{.Name}}">{{.Value}}</dd>{{end}}{{end}}</dl>
</section>{{end}}

{{define "editor:generic"}}<form class="mk-editor" data-editor-for="{{.ID}}" data-component-type="{{.Type}}">
<h3>{{.Label}}</h3>
{{range .Fields}}<label class="mk-editor-row">{{.Label}}
{{if .Multiline}}<textarea name="{{.Name}}" data-field="{{.Name}}">{{.Value}}</textarea>
{{else if eq .Kind "bool"}}<input type="checkbox" name="{{.Name}}" data-field="{{.Name}}"{{if .Checked}} checked{{end}}>
{{else}}<input type="{{.InputType}}" name="{{.Name}}" data-field="{{.Name}}" value="{{.Value}}">
{{end}}</label>
{{end}}</form>{{end}}
`
