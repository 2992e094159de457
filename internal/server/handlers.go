package server

import (
	"fmt"
	"log"
	"net/http"
)

// WebSocketHandler upgrades GET /ws and hands the connection to the hub. The
// client must send a join frame before any other action.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if !s.hub.Register(client) {
		log.Printf("Rejecting %s: hub is shutting down", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler reports liveness with the number of open connections.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "hangout server is running! (%d connections)", s.hub.ClientCount())
}

// TestPageHandler serves a small page that speaks the join, typing and
// effect protocol, for manual testing.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>hangout WebSocket Test</title>
    <style>
        body { font-family: monospace; margin: 20px; background: #000; color: #0f0; }
        #log { border: 1px solid #0f0; height: 320px; padding: 8px; overflow-y: scroll; margin: 10px 0; }
        input { background: #000; color: #0f0; border: 1px solid #0f0; padding: 4px; margin-right: 6px; }
        button { background: #0f0; color: #000; border: none; padding: 4px 12px; cursor: pointer; margin-right: 4px; }
        .status { margin: 8px 0; }
    </style>
</head>
<body>
    <h1>hangout test page</h1>
    <div>
        <input id="username" placeholder="username" value="tester">
        <input id="room" placeholder="room" value="main">
        <input id="secret" placeholder="secret (optional)" type="password">
        <button onclick="connect()">Join</button>
        <button onclick="disconnect()">Leave</button>
    </div>
    <div class="status" id="status">Disconnected</div>
    <div>
        <input id="text" placeholder="type to send typing signals">
        <button onclick="send({action: 'confetti'})">Confetti</button>
        <button onclick="send({action: 'jumpscare'})">Jumpscare</button>
        <button onclick="send({action: 'game', payload: {type: 'ping', at: Date.now()}})">Game ping</button>
    </div>
    <div>Online: <span id="online">-</span> | Typing: <span id="typing">-</span></div>
    <div id="log"></div>

    <script>
        let ws = null;
        let typingTimer = null;
        const logDiv = document.getElementById('log');

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            logDiv.appendChild(el);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function send(frame) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(frame));
            }
        }

        function connect() {
            disconnect();
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                document.getElementById('status').textContent = 'Connected';
                send({
                    action: 'join',
                    username: document.getElementById('username').value,
                    room: document.getElementById('room').value,
                    secret: document.getElementById('secret').value
                });
            };
            ws.onmessage = function(event) {
                event.data.split('\n').forEach(function(line) {
                    const msg = JSON.parse(line);
                    if (msg.type === 'presenceList') {
                        document.getElementById('online').textContent = msg.users.join(', ') + ' (' + msg.count + ')';
                    } else if (msg.type === 'typingList') {
                        document.getElementById('typing').textContent = msg.users.join(', ') || '-';
                    } else {
                        log(line);
                    }
                });
            };
            ws.onclose = function() {
                document.getElementById('status').textContent = 'Disconnected';
                ws = null;
            };
        }

        function disconnect() {
            if (ws) {
                ws.close();
            }
        }

        document.getElementById('text').addEventListener('input', function() {
            send({action: 'typing'});
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() { send({action: 'stopTyping'}); }, 1500);
        });
    </script>
</body>
</html>`
