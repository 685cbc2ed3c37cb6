package server

// appJS drives every terminal on a page. Scripts and widgets share the same
// client: the server runs the session and streams frames; the page only
// renders them and forwards input.
const appJS = `
(function () {
  'use strict';

  const CSRF = window.WISHJOURNAL_CSRF || '';
  const KEEPALIVE_MS = 60000;
  const CLEAR_SEQUENCES = ['\x1b[2J\x1b[H', '\x1b[H\x1b[2J', '\x1b[2J', '\x1bc'];
  const FORWARDED_KEYS = ['ArrowUp', 'ArrowDown', 'ArrowLeft', 'ArrowRight', 'Backspace', 'Escape', 'Enter',
    '0', '1', '2', '3', '4', '5', '6', '7', '8', '9'];

  function OutputFilter() {
    this.pending = '';
  }

  function couldExtend(s) {
    return CLEAR_SEQUENCES.some(function (seq) { return s.length < seq.length && seq.indexOf(s) === 0; });
  }

  function matchClear(s) {
    for (const seq of CLEAR_SEQUENCES) {
      if (s.indexOf(seq) === 0) return seq.length;
    }
    return 0;
  }

  OutputFilter.prototype.write = function (chunk) {
    const buf = this.pending + chunk;
    const out = [];
    let text = '';
    this.pending = '';
    let i = 0;
    while (i < buf.length) {
      if (buf[i] !== '\x1b') {
        const j = buf.indexOf('\x1b', i);
        if (j < 0) { text += buf.slice(i); break; }
        text += buf.slice(i, j);
        i = j;
        continue;
      }
      const rest = buf.slice(i);
      if (couldExtend(rest)) { this.pending = rest; break; }
      const n = matchClear(rest);
      if (n > 0) {
        if (text) { out.push({ text: text }); text = ''; }
        out.push({ clear: true });
        i += n;
        continue;
      }
      text += buf[i];
      i++;
    }
    if (text) out.push({ text: text });
    return out;
  };

  OutputFilter.prototype.flush = function () {
    const rest = this.pending;
    this.pending = '';
    if (!rest) return [];
    const n = matchClear(rest);
    if (n > 0) return n < rest.length ? [{ clear: true }, { text: rest.slice(n) }] : [{ clear: true }];
    return [{ text: rest }];
  };

  function post(path, body) {
    body.csrf_token = CSRF;
    return fetch(path, {
      method: 'POST',
      credentials: 'same-origin',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(body),
    }).then(function (res) {
      if (!res.ok) console.warn('wishjournal:', path, 'rejected with', res.status);
    }).catch(function (err) {
      console.warn('wishjournal:', path, 'failed', err);
    });
  }

  function el(tag, cls, text) {
    const node = document.createElement(tag);
    if (cls) node.className = cls;
    if (text !== undefined) node.textContent = text;
    return node;
  }

  function buildShell(root, title) {
    root.appendChild(el('div', 'script-header'));
    root.lastChild.appendChild(el('span', 'script-title', title));
    root.lastChild.appendChild(el('span', 'script-status', 'zatrzymany'));
    const term = el('div', 'script-terminal');
    term.appendChild(el('div', 'terminal-view'));
    term.appendChild(el('pre', 'script-output'));
    const input = el('input', 'script-input');
    input.type = 'text';
    input.autocomplete = 'off';
    input.disabled = true;
    input.placeholder = 'Wpisz i naciśnij Enter';
    term.appendChild(input);
    root.appendChild(term);
    const controls = el('div', 'script-controls');
    const start = el('button', 'script-start', 'Uruchom');
    const stop = el('button', 'script-stop', 'Zatrzymaj');
    start.type = 'button';
    stop.type = 'button';
    stop.disabled = true;
    controls.appendChild(start);
    controls.appendChild(stop);
    root.appendChild(controls);
  }

  // Terminal the user last clicked or focused; body-level keys go only there.
  let focusedTerminal = null;

  function Terminal(root, streamURL) {
    this.root = root;
    this.streamURL = streamURL;
    if (!root.querySelector('.script-output')) buildShell(root, root.dataset.widgetType || 'terminal');
    this.output = root.querySelector('.script-output');
    this.input = root.querySelector('.script-input');
    this.status = root.querySelector('.script-status');
    this.startBtn = root.querySelector('.script-start');
    this.stopBtn = root.querySelector('.script-stop');
    this.view = root.querySelector('.terminal-view');
    if (!this.view) {
      this.view = el('div', 'terminal-view');
      this.output.parentNode.insertBefore(this.view, this.output);
    }
    this.state = 'disconnected';
    this.source = null;
    this.sessionID = '';
    this.keepalive = null;
    this.filter = new OutputFilter();
    this.onKey = this.handleKey.bind(this);

    const self = this;
    this.startBtn.addEventListener('click', function () { self.start(); });
    this.stopBtn.addEventListener('click', function () { self.stop(); });
    root.addEventListener('mousedown', function () { focusedTerminal = self; });
    root.addEventListener('focusin', function () { focusedTerminal = self; });
    this.input.addEventListener('keydown', function (ev) {
      if (ev.key !== 'Enter') return;
      ev.preventDefault();
      const text = self.input.value;
      self.input.value = '';
      self.send({ text: text });
    });
  }

  Terminal.prototype.setState = function (state) {
    this.state = state;
    this.root.dataset.state = state;
    this.status.dataset.state = state;
    this.status.textContent = state === 'running' ? 'działa' : state === 'connecting' ? 'łączenie…' : 'zatrzymany';
    this.input.disabled = state !== 'running';
    this.stopBtn.disabled = state !== 'running';
    this.startBtn.disabled = state === 'connecting';
  };

  Terminal.prototype.append = function (text, cls) {
    if (!text) return;
    const span = el('span', cls || '', text);
    this.output.appendChild(span);
    this.output.scrollTop = this.output.scrollHeight;
  };

  Terminal.prototype.apply = function (segments) {
    for (const seg of segments) {
      if (seg.clear) {
        this.output.textContent = '';
        this.view.textContent = '';
      } else {
        this.append(seg.text);
      }
    }
  };

  Terminal.prototype.start = function () {
    this.teardown();
    this.output.textContent = '';
    this.view.textContent = '';
    this.filter = new OutputFilter();
    this.setState('connecting');

    const source = new EventSource(this.streamURL());
    const self = this;
    this.source = source;
    const live = function () { return self.source === source; };
    const parse = function (ev) {
      try { return JSON.parse(ev.data); } catch (e) { return {}; }
    };

    source.addEventListener('session', function (ev) {
      if (!live()) return;
      self.sessionID = parse(ev).session_id || '';
      self.setState('running');
      focusedTerminal = self;
      document.addEventListener('keydown', self.onKey);
      self.keepalive = setInterval(function () {
        post('/script/keepalive', { session_id: self.sessionID });
      }, KEEPALIVE_MS);
      self.input.focus();
    });
    source.addEventListener('output', function (ev) {
      if (!live()) return;
      self.apply(self.filter.write(parse(ev).text || ''));
    });
    source.addEventListener('error', function (ev) {
      if (!live()) return;
      if (ev.data === undefined) {
        self.apply(self.filter.flush());
        self.teardown();
        return;
      }
      self.apply(self.filter.flush());
      self.append(parse(ev).text || '', 'term-error');
    });
    source.addEventListener('ui', function (ev) {
      if (!live()) return;
      self.renderView(parse(ev).ui || {});
    });
    source.addEventListener('exit', function (ev) {
      if (!live()) return;
      self.apply(self.filter.flush());
      self.append('\n[Program zakończony, kod wyjścia: ' + (parse(ev).code || 0) + ']\n');
      self.teardown();
    });
    source.addEventListener('timeout', function () {
      if (!live()) return;
      self.apply(self.filter.flush());
      self.append('\n[Przekroczono limit czasu bezczynności]\n', 'term-error');
      self.teardown();
    });
  };

  Terminal.prototype.teardown = function () {
    if (this.source) {
      this.source.close();
      this.source = null;
    }
    if (this.keepalive) {
      clearInterval(this.keepalive);
      this.keepalive = null;
    }
    document.removeEventListener('keydown', this.onKey);
    if (focusedTerminal === this) focusedTerminal = null;
    this.sessionID = '';
    this.setState('disconnected');
  };

  Terminal.prototype.stop = function () {
    if (this.state !== 'running') return;
    post('/script/stop', { session_id: this.sessionID });
    this.apply(this.filter.flush());
    this.teardown();
  };

  Terminal.prototype.send = function (input) {
    if (this.state !== 'running') return;
    input.session_id = this.sessionID;
    post('/script/input', input);
  };

  Terminal.prototype.handleKey = function (ev) {
    if (!this.view.dataset.kind || document.activeElement === this.input) return;
    const active = document.activeElement;
    if (!this.root.contains(active) && !(active === document.body && focusedTerminal === this)) return;
    if (FORWARDED_KEYS.indexOf(ev.key) < 0) return;
    ev.preventDefault();
    this.send({ key: ev.key });
  };

  Terminal.prototype.renderView = function (v) {
    const view = this.view;
    view.textContent = '';
    view.dataset.kind = v.kind || '';
    const self = this;
    if (v.kind === 'code-lock') {
      const row = el('div', 'lock-digits');
      (v.digits || []).forEach(function (d, i) {
        const cell = el('span', 'lock-digit' + (i === v.cursor ? ' active' : ''), String(d));
        row.appendChild(cell);
      });
      view.appendChild(row);
      view.appendChild(el('div', 'lock-attempts muted', 'Pozostało prób: ' + v.attempts));
      return;
    }
    if (v.kind === 'cipher') {
      const text = el('div', 'cipher-text');
      (v.cells || []).forEach(function (c, i) {
        text.appendChild(el('span', 'cipher-cell' + (c.revealed ? ' revealed' : '') + (i === v.cursor ? ' active' : ''), c.char));
      });
      view.appendChild(text);
      const tiles = el('div', 'cipher-tiles');
      (v.tiles || []).forEach(function (t) {
        const b = el('button', 'cipher-tile' + (t.id === v.flash ? ' wrong' : ''), t.label);
        b.type = 'button';
        b.disabled = !!v.auto || v.cursor < 0;
        b.addEventListener('click', function () { self.send({ tile: t.id }); });
        tiles.appendChild(b);
      });
      view.appendChild(tiles);
    }
  };

  function formatTime(seconds) {
    if (!isFinite(seconds) || seconds < 0) seconds = 0;
    const s = Math.floor(seconds);
    const h = Math.floor(s / 3600);
    const m = Math.floor((s % 3600) / 60);
    const sec = String(s % 60).padStart(2, '0');
    return h > 0 ? h + ':' + String(m).padStart(2, '0') + ':' + sec : m + ':' + sec;
  }

  function initMediaPlayer(root) {
    const media = root.querySelector('.mp-element');
    const play = root.querySelector('.mp-play');
    const progress = root.querySelector('.mp-progress');
    const fill = root.querySelector('.mp-progress-fill');
    const time = root.querySelector('.mp-time');
    const volume = root.querySelector('.mp-volume');
    if (!media || !play) return;

    const update = function () {
      const d = media.duration || 0;
      fill.style.width = d > 0 ? (media.currentTime / d * 100) + '%' : '0%';
      time.textContent = formatTime(media.currentTime) + ' / ' + formatTime(d);
      play.innerHTML = media.paused ? '&#9654;' : '&#10074;&#10074;';
    };
    play.addEventListener('click', function () {
      if (media.paused) media.play(); else media.pause();
    });
    progress.addEventListener('click', function (ev) {
      const rect = progress.getBoundingClientRect();
      const f = Math.min(1, Math.max(0, (ev.clientX - rect.left) / rect.width));
      if (isFinite(media.duration)) media.currentTime = f * media.duration;
    });
    volume.addEventListener('input', function () {
      media.volume = Math.min(1, Math.max(0, Number(volume.value)));
    });
    ['timeupdate', 'loadedmetadata', 'play', 'pause', 'ended'].forEach(function (name) {
      media.addEventListener(name, update);
    });
    update();
  }

  function init() {
    document.querySelectorAll('.script-wrapper[data-script-path]').forEach(function (root) {
      const path = root.dataset.scriptPath;
      new Terminal(root, function () {
        return '/script/stream?path=' + encodeURIComponent(path) + '&csrf_token=' + encodeURIComponent(CSRF);
      });
    });
    document.querySelectorAll('.interactive-widget[data-widget-id]').forEach(function (root) {
      const id = root.dataset.widgetId;
      new Terminal(root, function () {
        return '/widget/stream?id=' + encodeURIComponent(id) + '&csrf_token=' + encodeURIComponent(CSRF);
      });
    });
    document.querySelectorAll('.media-player').forEach(initMediaPlayer);
    window.addEventListener('pagehide', function () {
      document.querySelectorAll('.interactive-widget[data-widget-id]').forEach(function (root) {
        navigator.sendBeacon && navigator.sendBeacon('/widget/release', new Blob([JSON.stringify({
          widget_id: root.dataset.widgetId,
          csrf_token: CSRF,
        })], { type: 'application/json' }));
      });
    });
  }

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', init);
  } else {
    init();
  }
})();
`
