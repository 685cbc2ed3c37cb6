package server

const layoutHTML = `<!doctype html>
<html lang="pl">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} · Dziennik życzeń</title>
  <link rel="stylesheet" href="/ui/app.css">
</head>
<body>
  <header class="site-header">
    <a class="brand" href="/">Dziennik życzeń</a>
    {{with .Viewer}}<nav class="site-nav"><span class="muted">{{.User.FirstName}}</span><a class="nav-btn" href="/auth/logout">Wyloguj</a></nav>{{end}}
  </header>
  <main>
    {{with .Flash}}<div class="flash flash-error">{{.}}</div>{{end}}
    {{template "content" .}}
  </main>
  <footer class="site-footer"><span class="footer-message">{{.Footer}}</span><span class="muted">{{.Version}}</span></footer>
  {{if .Viewer}}<script>window.WISHJOURNAL_CSRF = {{.CSRF}};</script>
  <script src="/ui/app.js" defer></script>{{end}}
</body>
</html>
`

const indexHTML = `{{define "content"}}
<h1>Wpisy</h1>
{{range .Body.Posts}}
<article class="card post-summary">
  <h2><a href="/post/{{.Slug}}">{{.Title}}</a></h2>
  <div class="post-meta">{{formatDate .Date}} · {{.Author}} · komentarze: {{.Comments}}</div>
  <div class="post-excerpt">{{.Excerpt}}</div>
  <a class="read-more" href="/post/{{.Slug}}">Czytaj dalej</a>
</article>
{{else}}
<p class="muted">Brak wpisów.</p>
{{end}}
{{end}}`

const postHTML = `{{define "content"}}{{with .Body}}
<article class="card post">
  <h1>{{.Post.Title}}</h1>
  <div class="post-meta">{{formatDate .Post.Date}} · {{.Post.Author}}</div>
  <div class="post-content">{{.Content}}</div>
</article>
<section class="card comments" id="comments">
  <h2>Komentarze ({{len .Comments}})</h2>
  {{range .Comments}}
  <div class="comment" id="comment-{{.ID}}">
    <div class="comment-meta"><strong>{{.FirstName}}</strong> <span class="muted">@{{.Username}} · {{.DisplayDate}}</span></div>
    <div class="comment-body">{{.Body}}</div>
  </div>
  {{else}}
  <p class="muted">Brak komentarzy. Bądź pierwszy!</p>
  {{end}}
  {{if .ShowSuccess}}<div class="flash flash-success">Komentarz został dodany.</div>{{end}}
  <form method="post" action="/post/{{.Post.Slug}}/comment" id="comment-form" class="comment-form">
    <input type="hidden" name="csrf_token" value="{{.CSRF}}">
    <textarea name="content" rows="4" placeholder="Napisz komentarz..."></textarea>
    <button type="submit">Dodaj komentarz</button>
  </form>
</section>
{{end}}{{end}}`

const loginHTML = `{{define "content"}}
<section class="card login">
  <h1>Zaloguj się</h1>
  {{if .Body.ShowError}}<div class="flash flash-error">Nieprawidłowe hasło.</div>{{end}}
  {{if .Body.RateLimited}}<div class="flash flash-error">Zbyt wiele prób logowania. Spróbuj ponownie za minutę.</div>{{end}}
  <form method="post" action="/auth/login">
    <label>Hasło <input type="password" name="password" autofocus required></label>
    <button type="submit">Zaloguj</button>
  </form>
</section>
{{end}}`

const notFoundHTML = `{{define "content"}}
<section class="card not-found">
  <h1>404</h1>
  <p>Nie znaleziono strony.</p>
  <a href="/">Wróć do wpisów</a>
</section>
{{end}}`
