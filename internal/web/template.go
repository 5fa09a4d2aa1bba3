package web

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>ETF Checker</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; padding: 0 1rem; }
label { display: block; margin-top: 1rem; }
input { width: 100%; padding: .4rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { padding: .2rem .8rem; text-align: left; }
.muted { color: #666; }
</style>
</head>
<body>
<h1>ETF Checker</h1>
<p class="muted">Polling every {{.PollInterval}}s, alerts via <code>{{.NotifyService}}</code>.</p>

<form id="config">
  <label>ETF symbols (comma separated)
    <input name="etf_symbols" value="{{.Symbols}}" placeholder="VWCE.DE, SWDA.MI">
  </label>
  <label>Threshold (%)
    <input name="threshold_percent" type="number" step="0.1" min="0.1" value="{{.Threshold}}">
  </label>
  <label>Retry after market open (s)
    <input name="market_open_retry_seconds" type="number" min="0" value="{{.MarketOpenRetrySeconds}}">
  </label>
  <label>Finnhub API key
    <input name="finnhub_api_key" type="password" value="{{.FinnhubAPIKey}}">
  </label>
  <p><button type="submit">Save</button> <button type="button" id="poll">Poll now</button></p>
</form>
<p id="status" class="muted"></p>

<h2>Baselines</h2>
{{if .Baselines}}
<table>
  <tr><th>Symbol</th><th>Baseline</th></tr>
  {{range .Baselines}}<tr><td>{{.Symbol}}</td><td>{{printf "%.2f" .Price}}</td></tr>
  {{end}}
</table>
{{else}}
<p class="muted">No baselines recorded yet.</p>
{{end}}
{{with .LastBaselineUpdate}}<p class="muted">Last baseline update: {{.}}</p>{{end}}

<script>
const root = {{.IngressRoot}};
const status = document.getElementById("status");
document.getElementById("config").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const form = new FormData(ev.target);
  const body = Object.fromEntries(form.entries());
  const res = await fetch(root + "/api/config", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify(body),
  });
  status.textContent = res.ok ? "Saved." : "Save failed.";
  if (res.ok) { location.reload(); }
});
document.getElementById("poll").addEventListener("click", async () => {
  const res = await fetch(root + "/api/poll", {method: "POST"});
  status.textContent = res.ok ? "Poll complete." : "Poll failed.";
  if (res.ok) { location.reload(); }
});
</script>
</body>
</html>
`))
