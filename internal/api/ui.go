package api

import (
	"net/http"
)

const consoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stimuli - Run Console</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: monospace; background: #1a1a2e; color: #eee; height: 100vh; display: flex; flex-direction: column; }
        header, .controls, footer { background: #16213e; padding: 10px 20px; display: flex; gap: 12px; align-items: center; }
        header { justify-content: space-between; border-bottom: 1px solid #0f3460; }
        header h1 { font-size: 16px; font-weight: normal; }
        #state { padding: 4px 10px; border-radius: 4px; font-size: 12px; background: #374151; }
        #state.running { background: #1b4332; color: #95d5b2; }
        #state.paused, #state.awaiting_response { background: #78350f; color: #fcd34d; }
        #state.aborted { background: #7f1d1d; color: #fca5a5; }
        #where { font-size: 12px; color: #9ca3af; }
        .controls { border-bottom: 1px solid #0f3460; flex-wrap: wrap; }
        .controls input { background: #1a1a2e; border: 1px solid #0f3460; border-radius: 4px; padding: 6px 10px; color: #eee; font-family: monospace; width: 120px; }
        .controls button { background: #2563eb; border: none; border-radius: 4px; padding: 6px 12px; color: #fff; font-family: monospace; cursor: pointer; }
        .controls button.stop { background: #dc2626; }
        .controls button:disabled { background: #374151; cursor: not-allowed; }
        #result { font-size: 12px; }
        #result.error { color: #fca5a5; }
        #sections { padding: 8px 20px; font-size: 12px; color: #9ca3af; }
        #events { flex: 1; overflow-y: auto; padding: 10px; }
        .event { padding: 6px 12px; margin-bottom: 4px; background: #16213e; border-left: 3px solid #0f3460; font-size: 13px; display: flex; gap: 12px; }
        .event.level-error { border-left-color: #dc2626; }
        .event.scope-trial { border-left-color: #059669; }
        .event.scope-section { border-left-color: #7c3aed; }
        .event.scope-response { border-left-color: #d97706; }
        .ts { color: #6b7280; min-width: 90px; }
        .name { color: #60a5fa; min-width: 160px; }
        .fields { color: #9ca3af; }
        footer { border-top: 1px solid #0f3460; font-size: 11px; color: #6b7280; }
    </style>
</head>
<body>
    <header>
        <h1>Stimuli - <span id="run">run</span></h1>
        <span id="where"></span>
        <span id="state">idle</span>
    </header>
    <div class="controls">
        <input type="text" id="answer" placeholder="response">
        <button id="send" onclick="sendResponse()">Send</button>
        <button onclick="command('pause')">Pause</button>
        <button onclick="command('resume')">Resume</button>
        <button class="stop" onclick="command('abort')">Abort</button>
        <span id="result"></span>
    </div>
    <div id="sections"></div>
    <main id="events"></main>
    <footer><span id="count">0</span>&nbsp;events | /ws/events</footer>

    <script>
        const eventsDiv = document.getElementById('events');
        const resultEl = document.getElementById('result');
        let count = 0;

        function show(ok, msg) {
            resultEl.className = ok ? '' : 'error';
            resultEl.textContent = msg;
            setTimeout(function() { resultEl.textContent = ''; }, 4000);
        }

        function post(path, body) {
            return fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: body ? JSON.stringify(body) : undefined
            }).then(function(res) { return res.json(); });
        }

        function command(name) {
            post('/api/run/' + name)
                .then(function(d) { show(d.ok, d.ok ? name + ' queued' : d.error); })
                .catch(function() { show(false, 'network error'); });
        }

        function sendResponse() {
            const input = document.getElementById('answer');
            const text = input.value.trim();
            if (!text) return;
            post('/api/run/response', { text: text })
                .then(function(d) { show(d.ok, d.ok ? 'response queued' : d.error); input.value = ''; })
                .catch(function() { show(false, 'network error'); });
        }
        document.getElementById('answer').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendResponse();
        });

        function poll() {
            fetch('/api/run/status').then(function(res) { return res.json(); }).then(function(s) {
                if (!s.state) return;
                document.getElementById('run').textContent = s.run_id;
                const st = document.getElementById('state');
                st.className = s.state;
                st.textContent = s.state;
                document.getElementById('where').textContent =
                    (s.section || '-') + ' trial ' + (s.trial + 1) + ' ' + (s.scene || '') + ' frame ' + s.frame;
                document.getElementById('sections').textContent = (s.sections || []).map(function(x) {
                    return x.id + ' ' + x.completed + ' done, ' + Math.round(x.accuracy * 100) + '%';
                }).join(' | ');
            }).catch(function() {});
        }
        setInterval(poll, 500);
        poll();

        function render(e) {
            const div = document.createElement('div');
            div.className = 'event level-' + e.level + ' scope-' + e.event.split('.')[0];
            const ts = document.createElement('span');
            ts.className = 'ts';
            ts.textContent = new Date(e.ts).toLocaleTimeString('en-US', { hour12: false });
            const name = document.createElement('span');
            name.className = 'name';
            name.textContent = e.event;
            const fields = document.createElement('span');
            fields.className = 'fields';
            fields.textContent = e.fields ? JSON.stringify(e.fields) : (e.msg || '');
            div.append(ts, name, fields);
            eventsDiv.appendChild(div);
            document.getElementById('count').textContent = ++count;
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
            while (eventsDiv.children.length > 500) eventsDiv.removeChild(eventsDiv.firstChild);
        }

        function connect() {
            const protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(protocol + '//' + location.host + '/ws/events?filter=run.,section.,trial.,response.,staircase.,operator.,display.');
            ws.onmessage = function(msg) {
                try { render(JSON.parse(msg.data)); } catch (err) { console.error(err); }
            };
            ws.onclose = function() { setTimeout(connect, 3000); };
            ws.onerror = function() { ws.close(); };
        }
        connect();
    </script>
</body>
</html>`

// consoleHandler serves the run console page.
func consoleHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(consoleHTML))
}
