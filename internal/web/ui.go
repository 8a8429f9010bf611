package web

import (
	"fmt"
	"net/http"
	"strings"
)

const logoutForm = `<form method="post" action="/logout"><button class="btn btn-ghost" type="submit">Sign out</button></form>`

// handleUI serves the embedded UI.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	logout := ""
	if s.cfg.AuthEnabled() {
		logout = logoutForm
	}
	page := strings.NewReplacer(
		"{{APP_VERSION}}", s.version,
		"<!--LOGOUT-->", logout,
	).Replace(uiHTML)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

const uiHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Ledger Dash</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #0f172a;
    color: #e2e8f0;
    min-height: 100vh;
  }
  .container { max-width: 1280px; margin: 0 auto; padding: 24px; }
  .header { display: flex; align-items: center; justify-content: space-between; margin-bottom: 20px; }
  .title { font-size: 20px; font-weight: 700; color: #fff; }
  .title span { color: #38bdf8; }
  .meta { font-size: 12px; color: #64748b; margin-top: 4px; }
  .actions { display: flex; gap: 8px; align-items: center; }
  .btn {
    background: #0284c7; color: #fff; border: none; border-radius: 8px;
    font-size: 13px; font-weight: 600; padding: 8px 14px; cursor: pointer; text-decoration: none;
  }
  .btn:disabled { background: #475569; cursor: wait; }
  .btn-ghost { background: transparent; border: 1px solid #334155; color: #cbd5e1; }
  .btn-mine { background: #f59e0b; color: #111827; width: 100%; margin-top: 12px; }
  .banner { border-radius: 8px; font-size: 13px; padding: 10px 14px; margin-bottom: 16px; display: none; }
  .banner.show { display: block; }
  .banner-error { background: rgba(248,113,113,.1); border: 1px solid rgba(248,113,113,.3); color: #f87171; }
  .banner-info { background: rgba(56,189,248,.1); border: 1px solid rgba(56,189,248,.3); color: #7dd3fc; }
  .stats { display: grid; grid-template-columns: repeat(2, 1fr); gap: 16px; margin-bottom: 16px; }
  .stat { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 16px; }
  .stat-label { font-size: 12px; color: #94a3b8; text-transform: uppercase; letter-spacing: .06em; }
  .stat-value { font-size: 28px; font-weight: 700; color: #fff; margin-top: 4px; }
  .grid { display: grid; grid-template-columns: 260px 1fr 300px; gap: 16px; }
  .panel { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 16px; margin-bottom: 16px; }
  .panel h2 { font-size: 13px; color: #94a3b8; text-transform: uppercase; letter-spacing: .06em; margin-bottom: 10px; }
  .list { list-style: none; max-height: 260px; overflow-y: auto; }
  .list li { font-size: 13px; padding: 6px 8px; border-radius: 6px; cursor: pointer; }
  .list li:hover { background: #334155; }
  .list li.placeholder { color: #64748b; cursor: default; }
  .list li.placeholder:hover { background: transparent; }
  .state-view {
    font-family: 'SFMono-Regular', Menlo, Consolas, monospace; font-size: 12px; line-height: 1.5;
    white-space: pre; overflow: auto; max-height: 720px; background: #0b1120; border-radius: 8px; padding: 12px;
  }
  .json-key { color: #7dd3fc; }
  .json-string { color: #86efac; }
  .json-number { color: #fbbf24; }
  .json-boolean { color: #c084fc; }
  .json-null { color: #f87171; }
  .flash { outline: 2px solid #f59e0b; border-radius: 2px; }
  .tally-row { display: flex; justify-content: space-between; font-size: 13px; padding: 4px 0; }
  .logs { font-family: monospace; font-size: 11px; max-height: 220px; overflow-y: auto; color: #94a3b8; }
  .logs div { padding: 2px 0; white-space: pre-wrap; word-break: break-all; }
  .log-ERROR { color: #f87171; }
  .log-WARN { color: #fbbf24; }
  .footer { text-align: center; font-size: 11px; color: #475569; margin-top: 16px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <div>
      <div class="title">Ledger <span>Dash</span></div>
      <div class="meta" id="node-meta">Waiting for first sync…</div>
    </div>
    <div class="actions">
      <button class="btn btn-ghost" id="refresh-btn" onclick="refresh()">Refresh</button>
      <!--LOGOUT-->
    </div>
  </div>

  <div class="banner banner-error" id="sync-error"></div>
  <div class="banner" id="notice"></div>

  <div class="stats">
    <div class="stat"><div class="stat-label">Blocks</div><div class="stat-value" id="block-count">–</div></div>
    <div class="stat"><div class="stat-label">Registered voters</div><div class="stat-value" id="voter-count">–</div></div>
  </div>

  <div class="grid">
    <div>
      <div class="panel"><h2>Blocks</h2><ul class="list" id="block-list"></ul></div>
      <div class="panel"><h2>Voters</h2><ul class="list" id="voter-list"></ul></div>
    </div>
    <div class="panel">
      <h2>System state</h2>
      <pre class="state-view" id="state-view"></pre>
    </div>
    <div>
      <div class="panel">
        <h2>Pending pool</h2>
        <ul class="list" id="pending-list"></ul>
        <button class="btn btn-mine" id="mine-btn" style="display:none" onclick="mine()">Manual Override: Mine Block</button>
      </div>
      <div class="panel"><h2>Tally</h2><div id="tally"></div></div>
      <div class="panel"><h2>Activity</h2><div class="logs" id="logs"></div></div>
    </div>
  </div>
  <div class="footer">Ledger Dash {{APP_VERSION}}</div>
</div>

<script>
const $ = (id) => document.getElementById(id);

function entryItem(text, onClick) {
  const li = document.createElement('li');
  li.textContent = text;
  if (onClick) li.addEventListener('click', onClick);
  return li;
}

// scrollTo brings a navigation target into view: the structural anchor when
// the item has one, otherwise the approximate text position found by the
// server.
function scrollTo(entry) {
  const view = $('state-view');
  if (entry.anchor) {
    const el = document.getElementById(entry.anchor);
    if (!el) return;
    el.scrollIntoView({ behavior: 'smooth', block: 'center' });
    el.classList.add('flash');
    setTimeout(() => el.classList.remove('flash'), 1200);
    return;
  }
  if (entry.offset >= 0) view.scrollTop = entry.offset * 0.1;
}

function render(view) {
  const r = view.regions;

  const err = $('sync-error');
  if (view.syncError) {
    err.textContent = 'Sync failed: ' + view.syncError.message;
    err.classList.add('show');
  } else {
    err.classList.remove('show');
  }

  const notice = $('notice');
  if (view.notice) {
    notice.textContent = view.notice.message;
    notice.className = 'banner show banner-' + (view.notice.level === 'error' ? 'error' : 'info');
  }

  const btn = $('mine-btn');
  btn.disabled = view.mine.busy;
  btn.textContent = view.mine.label;

  renderLogs(view.logs || []);
  if (!r) return;

  // Every region below comes from the same snapshot.
  $('node-meta').textContent = [r.nodeId, r.status, 'synced ' + new Date(r.fetchedAt).toLocaleTimeString()]
    .filter(Boolean).join(' · ');
  $('block-count').textContent = r.blockCount;
  $('voter-count').textContent = r.voterCount;

  const blocks = $('block-list');
  blocks.replaceChildren(...(r.blocks || []).map(e => entryItem('Block ' + e.label, () => scrollTo(e))));

  const voters = $('voter-list');
  voters.replaceChildren(...(r.voters || []).map(e => entryItem('ID: ' + e.label, () => scrollTo(e))));

  const pending = $('pending-list');
  pending.replaceChildren(...r.pending.entries.map(e => {
    if (e.placeholder) {
      const li = entryItem('Pool empty');
      li.className = 'placeholder';
      return li;
    }
    return entryItem(e.voterId + ' ➔ ' + e.party);
  }));
  btn.style.display = r.pending.mineVisible ? 'block' : 'none';

  $('state-view').innerHTML = r.stateHtml;

  $('tally').replaceChildren(...(r.tally || []).map(t => {
    const row = document.createElement('div');
    row.className = 'tally-row';
    const party = document.createElement('span');
    party.textContent = t.party;
    const votes = document.createElement('span');
    votes.textContent = t.votes;
    row.append(party, votes);
    return row;
  }));
}

function renderLogs(logs) {
  const box = $('logs');
  const atBottom = box.scrollTop + box.clientHeight >= box.scrollHeight - 4;
  box.replaceChildren(...logs.map(l => {
    const d = document.createElement('div');
    d.className = 'log-' + l.level;
    d.textContent = l.message;
    return d;
  }));
  if (atBottom) box.scrollTop = box.scrollHeight;
}

async function post(path) {
  const res = await fetch(path, { method: 'POST' });
  if (res.status === 401) { location.href = '/login'; return null; }
  return res.json().catch(() => null);
}

async function refresh() {
  await post('/api/refresh');
}

async function mine() {
  $('mine-btn').disabled = true;
  const body = await post('/api/mine');
  if (body && body.status === 'error') {
    const notice = $('notice');
    notice.textContent = 'Mine failed: ' + body.message;
    notice.className = 'banner show banner-error';
  }
}

async function poll() {
  const res = await fetch('/api/regions');
  if (res.ok) render(await res.json());
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/ws');
  ws.onmessage = (ev) => render(JSON.parse(ev.data));
  ws.onclose = () => setTimeout(() => { poll().catch(() => {}); connect(); }, 2000);
}

connect();
</script>
</body>
</html>`
